// server.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codeweave/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	app := NewApp()
	if err := app.Startup(ctx); err != nil {
		return err
	}
	defer app.Shutdown()

	wsServer, err := newServer(app, listenAddr)
	if err != nil {
		return err
	}

	addr, err := wsServer.Start(ctx)
	if err != nil {
		return fmt.Errorf("start websocket server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "WS_ADDR:%s\n", addr)

	if err := app.WatchSettings(); err != nil {
		app.logger.Warn("settings watch disabled", "error", err)
	}

	<-ctx.Done()
	app.logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return wsServer.Stop(stopCtx)
}

// newServer builds the socket server over app and subscribes it to the
// app's events. addr overrides the configured listen address when set.
func newServer(app *App, addr string) (*websocket.Server, error) {
	router, err := websocket.NewRouter(app, rpcRoutes)
	if err != nil {
		return nil, err
	}

	settings := app.Settings()
	if addr == "" {
		addr = settings.ListenAddr
	}

	wsServer := websocket.NewServer(router, websocket.Options{
		Addr:     addr,
		AuthKey:  settings.AuthKey,
		Gatherer: app.Gatherer(),
		Logger:   app.logger,
	})
	app.AddBroadcaster(wsServer)
	return wsServer, nil
}
