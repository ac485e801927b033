// bindings.go
package main

import (
	"context"
	"fmt"

	"codeweave/internal/database"
	"codeweave/internal/generation"
	"codeweave/internal/versioning"
)

// rpcRoutes maps socket RPC names onto App methods
var rpcRoutes = map[string]string{
	"chat.send":       "SendChatMessage",
	"ai.generate":     "Generate",
	"ai.process":      "ProcessResponse",
	"versions.list":   "ListVersions",
	"versions.get":    "GetVersion",
	"versions.diff":   "DiffVersions",
	"files.get":       "GetFile",
	"files.history":   "FileHistory",
	"files.latestOne": "LatestFile",
	"files.latest":    "LatestFiles",
	"files.all":       "ProjectFiles",
	"files.byMessage": "FilesByMessage",
	"messages.list":   "ListMessages",
}

// ===== Chat Bindings =====

// SendChatMessage stores a chat message; messages mentioning @ai also get
// a model reply
func (a *App) SendChatMessage(ctx context.Context, projectID, sender, message string) (*generation.ChatResult, error) {
	return a.service.HandleProjectMessage(ctx, projectID, sender, message)
}

// ===== AI Bindings =====

// Generate asks the model for a reply and processes it. messageID may be
// empty, in which case no project version is created.
func (a *App) Generate(ctx context.Context, projectID, messageID, prompt string) (string, error) {
	return a.service.Generate(ctx, projectID, messageID, prompt)
}

// ProcessResponse runs an already generated model reply through the
// pipeline
func (a *App) ProcessResponse(ctx context.Context, raw, projectID, messageID string) (string, error) {
	return a.service.HandleGeneration(ctx, raw, projectID, messageID)
}

// ===== Version Bindings =====

// ListVersions returns a project's snapshots newest first, without trees
func (a *App) ListVersions(ctx context.Context, projectID string) ([]*database.ProjectVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.ListProjectVersions(ctx, projectID)
}

// GetVersion returns one snapshot with its file tree
func (a *App) GetVersion(ctx context.Context, projectID, versionID string) (*database.ProjectVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.GetProjectVersion(ctx, projectID, versionID)
}

// GetVersionByNumber returns a snapshot by its per-project number
func (a *App) GetVersionByNumber(ctx context.Context, projectID string, version int) (*database.ProjectVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.GetProjectVersionByNumber(ctx, projectID, version)
}

// DiffVersions compares two snapshots of a project by number
func (a *App) DiffVersions(ctx context.Context, projectID string, from, to int) (*versioning.VersionDiff, error) {
	fromVersion, err := a.GetVersionByNumber(ctx, projectID, from)
	if err != nil {
		return nil, err
	}
	toVersion, err := a.db.GetProjectVersionByNumber(ctx, projectID, to)
	if err != nil {
		return nil, err
	}
	return versioning.Diff(fromVersion, toVersion), nil
}

// ExportVersion writes a snapshot's files to dir, or to the default
// export directory when dir is empty
func (a *App) ExportVersion(ctx context.Context, projectID string, version int, dir string) (*versioning.ExportResult, error) {
	pv, err := a.GetVersionByNumber(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = a.config.GetExportPath(projectID, version)
	}
	result, err := versioning.Export(pv, dir)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		a.logger.Warn("export", "project", projectID, "version", version, "warning", w)
	}
	return result, nil
}

// ===== File Bindings =====

// GetFile returns one revision by ID. A revision belonging to another
// project is reported as not found.
func (a *App) GetFile(ctx context.Context, projectID, versionID string) (*database.FileVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	fv, err := a.db.GetFileVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if fv.ProjectID != projectID {
		return nil, fmt.Errorf("get file version %s: %w", versionID, database.ErrNotFound)
	}
	return fv, nil
}

// LatestFile returns the current revision of one path. A path whose
// latest revision is a deletion is not found.
func (a *App) LatestFile(ctx context.Context, projectID, filePath string) (*database.FileVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.LatestFileVersion(ctx, projectID, filePath, false)
}

// ProjectFiles returns every revision in a project, grouped by path with
// the newest first
func (a *App) ProjectFiles(ctx context.Context, projectID string) ([]*database.FileVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.ProjectFileVersions(ctx, projectID)
}

// FileHistory returns every revision of one path, newest first
func (a *App) FileHistory(ctx context.Context, projectID, filePath string) ([]*database.FileVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.FileVersionHistory(ctx, projectID, filePath)
}

// LatestFiles returns the current revision of every live path
func (a *App) LatestFiles(ctx context.Context, projectID string) ([]*database.FileVersion, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.LatestFileVersions(ctx, projectID, false)
}

// FilesByMessage returns the revisions written for one chat message
func (a *App) FilesByMessage(ctx context.Context, messageID string) ([]*database.FileVersion, error) {
	if err := generation.CheckID("messageId", messageID); err != nil {
		return nil, err
	}
	return a.db.FileVersionsByMessage(ctx, messageID)
}

// ===== Message Bindings =====

// ListMessages returns a project's chat, oldest first
func (a *App) ListMessages(ctx context.Context, projectID string) ([]*database.Message, error) {
	if err := generation.CheckID("projectId", projectID); err != nil {
		return nil, err
	}
	return a.db.ListMessages(ctx, projectID)
}
