// internal/database/models.go
package database

import "time"

// Message is one chat turn. Its timestamp bounds which file versions
// count as "before" the turn during reconciliation.
type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FileVersion is one append-only revision of a single path
type FileVersion struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"projectId"`
	FilePath  string         `json:"filePath"`
	FileName  string         `json:"fileName"`
	Content   string         `json:"content"`
	IsDeleted bool           `json:"isDeleted"`
	Version   int            `json:"version"`
	MessageID string         `json:"messageId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// SnapshotFile is the denormalized entry a project version keeps per path.
// VersionID points back at the FileVersion it was resolved from.
type SnapshotFile struct {
	Content      string    `json:"content"`
	Version      int       `json:"version"`
	VersionID    string    `json:"versionId"`
	LastModified time.Time `json:"lastModified"`
	FromMessage  string    `json:"fromMessage,omitempty"`
}

// ProjectVersion is an immutable whole-project snapshot
type ProjectVersion struct {
	ID          string                  `json:"id"`
	ProjectID   string                  `json:"projectId"`
	Version     int                     `json:"version"`
	Description string                  `json:"description"`
	FileTree    map[string]SnapshotFile `json:"fileTree,omitempty"`
	FilesCount  int                     `json:"filesCount"`
	MessageID   string                  `json:"messageId,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
}
