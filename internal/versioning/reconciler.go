// internal/versioning/reconciler.go
package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"codeweave/internal/database"
)

// Reconciler folds per-file revisions into whole-project snapshots
type Reconciler struct {
	files     FileStore
	snapshots SnapshotStore
	messages  MessageStore
	logger    *slog.Logger
	observer  Observer
}

// NewReconciler creates a reconciler. A nil observer or logger is allowed.
func NewReconciler(files FileStore, snapshots SnapshotStore, messages MessageStore, logger *slog.Logger, observer Observer) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		files:     files,
		snapshots: snapshots,
		messages:  messages,
		logger:    logger.With("component", "reconciler"),
		observer:  observer,
	}
}

// Reconcile resolves the project tree as of messageID and stores it as a
// new project version when it differs from the latest one. It returns
// nil with no error when the tree is empty or unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, projectID, messageID, description string) (*database.ProjectVersion, error) {
	tree, err := r.Resolve(ctx, projectID, messageID)
	if err != nil {
		return nil, err
	}

	if len(tree) == 0 {
		r.logger.Debug("resolved tree is empty, no project version", "project", projectID, "message", messageID)
		r.observer.ProjectReconciled(projectID, OutcomeEmpty, nil)
		return nil, nil
	}

	latest, err := r.snapshots.LatestProjectVersion(ctx, projectID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("load latest project version: %w", err)
	}
	if latest != nil && SameTree(latest.FileTree, tree) {
		r.logger.Debug("project unchanged since latest version",
			"project", projectID, "message", messageID, "version", latest.Version)
		r.observer.ProjectReconciled(projectID, OutcomeUnchanged, latest)
		return nil, nil
	}

	pv, err := r.snapshots.CreateProjectVersion(ctx, &database.ProjectVersion{
		ProjectID:   projectID,
		Description: description,
		FileTree:    tree,
		MessageID:   messageID,
	})
	if err != nil {
		return nil, fmt.Errorf("create project version: %w", err)
	}

	r.logger.Info("created project version",
		"project", projectID,
		"message", messageID,
		"version", pv.Version,
		"files", pv.FilesCount)
	r.observer.ProjectReconciled(projectID, OutcomeCreated, pv)
	return pv, nil
}

// Resolve computes the project tree a message leaves behind: the
// message's own writes win for the paths they touch, every other path
// takes its latest revision at or before the message timestamp. Deleted
// paths are left out.
func (r *Reconciler) Resolve(ctx context.Context, projectID, messageID string) (map[string]database.SnapshotFile, error) {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("load message: %w", err)
	}

	writes, err := r.files.FileVersionsByMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message writes: %w", err)
	}
	current := make(map[string]*database.FileVersion, len(writes))
	for _, fv := range writes {
		if fv.ProjectID != projectID {
			continue
		}
		// a message that touched a path twice is represented by its last write
		if prev, ok := current[fv.FilePath]; !ok || fv.Version > prev.Version {
			current[fv.FilePath] = fv
		}
	}

	paths, err := r.files.FilePaths(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load file paths: %w", err)
	}

	tree := make(map[string]database.SnapshotFile)
	for _, p := range paths {
		if fv, ok := current[p]; ok {
			if !fv.IsDeleted {
				tree[p] = snapshotOf(fv)
			}
			continue
		}

		fv, err := r.files.LatestFileVersionBefore(ctx, projectID, p, msg.Timestamp)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		if !fv.IsDeleted {
			tree[p] = snapshotOf(fv)
		}
	}
	return tree, nil
}

func snapshotOf(fv *database.FileVersion) database.SnapshotFile {
	return database.SnapshotFile{
		Content:      fv.Content,
		Version:      fv.Version,
		VersionID:    fv.ID,
		LastModified: fv.Timestamp,
		FromMessage:  fv.MessageID,
	}
}

// SameTree reports whether two trees hold the same paths with
// byte-identical content. Versions and timestamps are ignored.
func SameTree(a, b map[string]database.SnapshotFile) bool {
	pa, pb := sortedPaths(a), sortedPaths(b)
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if pa[i] != pb[i] {
			return false
		}
	}
	for p, f := range b {
		if a[p].Content != f.Content {
			return false
		}
	}
	return true
}

func sortedPaths(tree map[string]database.SnapshotFile) []string {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
