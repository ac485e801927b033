// internal/versioning/store.go
package versioning

import (
	"context"
	"errors"
	"time"

	"codeweave/internal/database"
)

// ErrMessageNotFound is returned by Reconcile when the originating message
// does not exist, since its timestamp is the reconciliation boundary
var ErrMessageNotFound = errors.New("message not found")

// FileStore is the per-file revision ledger
type FileStore interface {
	NextFileVersion(ctx context.Context, projectID, filePath string) (int, error)
	AppendFileVersion(ctx context.Context, fv *database.FileVersion) (*database.FileVersion, error)
	LatestFileVersionBefore(ctx context.Context, projectID, filePath string, cutoff time.Time) (*database.FileVersion, error)
	FilePaths(ctx context.Context, projectID string) ([]string, error)
	FileVersionsByMessage(ctx context.Context, messageID string) ([]*database.FileVersion, error)
}

// SnapshotStore holds whole-project versions
type SnapshotStore interface {
	LatestProjectVersion(ctx context.Context, projectID string) (*database.ProjectVersion, error)
	CreateProjectVersion(ctx context.Context, pv *database.ProjectVersion) (*database.ProjectVersion, error)
}

// MessageStore resolves the chat message that scopes a batch of writes
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*database.Message, error)
}

// Outcome describes what a reconciliation did
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeEmpty     Outcome = "empty"
)

// Observer is notified as records are written. Implementations must be
// safe for concurrent use; the materializer calls from several goroutines.
type Observer interface {
	FileVersionWritten(fv *database.FileVersion)
	EntrySkipped(projectID, filePath, reason string)
	ProjectReconciled(projectID string, outcome Outcome, pv *database.ProjectVersion)
}

type nopObserver struct{}

func (nopObserver) FileVersionWritten(*database.FileVersion) {}
func (nopObserver) EntrySkipped(string, string, string) {}
func (nopObserver) ProjectReconciled(string, Outcome, *database.ProjectVersion) {}
