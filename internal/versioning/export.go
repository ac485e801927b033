// internal/versioning/export.go
package versioning

import (
	"fmt"
	"os"
	"path/filepath"

	"codeweave/internal/database"
)

// ExportResult reports what Export wrote
type ExportResult struct {
	Version      int      `json:"version"`
	Dir          string   `json:"dir"`
	FilesWritten int      `json:"filesWritten"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Export writes every file of a project version beneath dir. Paths that
// are absolute or climb out of dir are refused and reported as warnings,
// as are individual write failures.
func Export(pv *database.ProjectVersion, dir string) (*ExportResult, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve export dir: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	result := &ExportResult{Version: pv.Version, Dir: root}

	for _, p := range sortedPaths(pv.FileTree) {
		local := filepath.FromSlash(p)
		if !filepath.IsLocal(local) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Refused to export %s: path escapes export dir", p))
			continue
		}

		target := filepath.Join(root, local)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Failed to create dir for %s: %v", p, err))
			continue
		}
		if err := os.WriteFile(target, []byte(pv.FileTree[p].Content), 0644); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Failed to export %s: %v", p, err))
			continue
		}
		result.FilesWritten++
	}

	return result, nil
}
