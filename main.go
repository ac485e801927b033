// main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"codeweave/internal/parser"
)

var (
	listenAddr string
	exportDir  string

	rootCmd = &cobra.Command{
		Use:   "codeweave",
		Short: "Versioned file storage for AI generated project code",
		Long: `codeweave turns model replies into per-file revisions and
whole-project snapshots, and serves them over a WebSocket RPC API.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	parseCmd = &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a raw model reply (from file or stdin) and print the client payload",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}

	versionsCmd = &cobra.Command{
		Use:   "versions",
		Short: "Inspect project versions",
	}
	versionsListCmd = &cobra.Command{
		Use:   "list [projectId]",
		Short: "List a project's versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, app *App, args []string) (interface{}, error) {
			return app.ListVersions(ctx, args[0])
		}),
	}
	versionsShowCmd = &cobra.Command{
		Use:   "show [projectId] [version]",
		Short: "Show one version with its file tree",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, app *App, args []string) (interface{}, error) {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid version %q", args[1])
			}
			return app.GetVersionByNumber(ctx, args[0], version)
		}),
	}
	versionsDiffCmd = &cobra.Command{
		Use:   "diff [projectId] [from] [to]",
		Short: "Compare two versions",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(ctx context.Context, app *App, args []string) (interface{}, error) {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid version %q", args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return nil, fmt.Errorf("invalid version %q", args[2])
			}
			return app.DiffVersions(ctx, args[0], from, to)
		}),
	}
	versionsExportCmd = &cobra.Command{
		Use:   "export [projectId] [version]",
		Short: "Write a version's files to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, app *App, args []string) (interface{}, error) {
			version, err := strconv.Atoi(args[1])
			if err != nil {
				return nil, fmt.Errorf("invalid version %q", args[1])
			}
			return app.ExportVersion(ctx, args[0], version, exportDir)
		}),
	}

	filesCmd = &cobra.Command{
		Use:   "files",
		Short: "Inspect file revisions",
	}
	filesHistoryCmd = &cobra.Command{
		Use:   "history [projectId] [path]",
		Short: "List every revision of a file, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, app *App, args []string) (interface{}, error) {
			return app.FileHistory(ctx, args[0], args[1])
		}),
	}
)

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (overrides settings.yaml)")
	versionsExportCmd.Flags().StringVar(&exportDir, "dir", "", "target directory (default: <data dir>/exports/<project>/v<N>)")

	versionsCmd.AddCommand(versionsListCmd, versionsShowCmd, versionsDiffCmd, versionsExportCmd)
	filesCmd.AddCommand(filesHistoryCmd)
	rootCmd.AddCommand(serveCmd, parseCmd, versionsCmd, filesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withApp runs fn against a started App and prints its result as JSON
func withApp(fn func(ctx context.Context, app *App, args []string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app := NewApp()
		if err := app.Startup(ctx); err != nil {
			return err
		}
		defer app.Shutdown()

		result, err := fn(ctx, app, args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	}
}

func runParse(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	resp := parser.Parse(string(raw))
	fmt.Fprintf(cmd.ErrOrStderr(), "stage: %s, files: %d\n", resp.Stage, len(resp.FileTree))
	fmt.Fprintln(cmd.OutOrStdout(), resp.Payload())
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
