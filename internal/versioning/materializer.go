// internal/versioning/materializer.go
package versioning

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"codeweave/internal/database"
	"codeweave/internal/parser"
)

// Metadata operations recorded on each file version
const (
	OperationWrite  = "create/modify"
	OperationDelete = "delete"
)

// EntryError records a file tree entry that produced no revision
type EntryError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// MaterializeResult is the outcome of writing one file tree
type MaterializeResult struct {
	WrittenCount int                     `json:"writtenCount"`
	Records      []*database.FileVersion `json:"records"`
	// Skipped entries had an unusable shape
	Skipped []EntryError `json:"skipped,omitempty"`
	// Failed entries were valid but the store rejected them
	Failed []EntryError `json:"failed,omitempty"`
}

// Materializer turns file tree instructions into file version records
type Materializer struct {
	store       FileStore
	logger      *slog.Logger
	observer    Observer
	concurrency int
}

// MaterializerOption configures a Materializer
type MaterializerOption func(*Materializer)

// WithConcurrency bounds how many entries are written at once
func WithConcurrency(n int) MaterializerOption {
	return func(m *Materializer) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithObserver registers an observer for written and skipped entries
func WithObserver(o Observer) MaterializerOption {
	return func(m *Materializer) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) MaterializerOption {
	return func(m *Materializer) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMaterializer creates a materializer over the given store
func NewMaterializer(store FileStore, opts ...MaterializerOption) *Materializer {
	m := &Materializer{
		store:       store,
		logger:      slog.Default(),
		observer:    nopObserver{},
		concurrency: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "materializer")
	return m
}

// Materialize appends one revision per usable entry. Entries are handled
// independently: a bad shape or a store error affects only that entry.
// Records are returned sorted by path.
func (m *Materializer) Materialize(ctx context.Context, tree map[string]parser.Instruction, projectID, messageID string) *MaterializeResult {
	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	records := make([]*database.FileVersion, len(paths))
	result := &MaterializeResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for i, filePath := range paths {
		inst := tree[filePath]

		if inst.Kind == parser.KindInvalid {
			m.logger.Warn("skipping file entry", "project", projectID, "path", filePath, "reason", inst.Reason)
			m.observer.EntrySkipped(projectID, filePath, inst.Reason)
			result.Skipped = append(result.Skipped, EntryError{Path: filePath, Reason: inst.Reason})
			continue
		}
		if strings.TrimSpace(filePath) == "" {
			m.logger.Warn("skipping file entry with empty path", "project", projectID)
			m.observer.EntrySkipped(projectID, filePath, "empty path")
			result.Skipped = append(result.Skipped, EntryError{Path: filePath, Reason: "empty path"})
			continue
		}

		i, filePath := i, filePath
		g.Go(func() error {
			fv, err := m.write(gctx, projectID, messageID, filePath, inst)
			if err != nil {
				m.logger.Error("failed to write file version", "project", projectID, "path", filePath, "error", err)
				mu.Lock()
				result.Failed = append(result.Failed, EntryError{Path: filePath, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			records[i] = fv
			m.observer.FileVersionWritten(fv)
			return nil
		})
	}
	_ = g.Wait()

	for _, fv := range records {
		if fv != nil {
			result.Records = append(result.Records, fv)
		}
	}
	result.WrittenCount = len(result.Records)
	sort.Slice(result.Failed, func(a, b int) bool { return result.Failed[a].Path < result.Failed[b].Path })

	m.logger.Debug("materialized file tree",
		"project", projectID,
		"message", messageID,
		"written", result.WrittenCount,
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))
	return result
}

func (m *Materializer) write(ctx context.Context, projectID, messageID, filePath string, inst parser.Instruction) (*database.FileVersion, error) {
	expected, err := m.store.NextFileVersion(ctx, projectID, filePath)
	if err != nil {
		return nil, err
	}

	fv := &database.FileVersion{
		ProjectID: projectID,
		FilePath:  filePath,
		FileName:  path.Base(filePath),
		MessageID: messageID,
		Version:   expected,
	}
	switch inst.Kind {
	case parser.KindDelete:
		fv.IsDeleted = true
		fv.Metadata = map[string]any{"operation": OperationDelete}
	case parser.KindUpsert:
		fv.Content = inst.Contents
		fv.Metadata = map[string]any{
			"operation": OperationWrite,
			"language":  Language(filePath),
		}
	default:
		return nil, fmt.Errorf("unexpected instruction %s", inst.Kind)
	}

	saved, err := m.store.AppendFileVersion(ctx, fv)
	if err != nil {
		return nil, err
	}
	if saved.Version != expected {
		m.logger.Warn("file version moved during write",
			"project", projectID, "path", filePath, "expected", expected, "assigned", saved.Version)
	}
	return saved, nil
}

// Language derives the language tag stored in file metadata from the
// extension of the file name
func Language(filePath string) string {
	name := path.Base(filePath)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "unknown"
	}
	return strings.ToLower(name[idx+1:])
}
