// internal/database/db.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// maxVersionRetries bounds retries when two writers race for the same
// version number and the unique index rejects the loser
const maxVersionRetries = 5

// Database wraps the SQLite database connection
type Database struct {
	db    *sql.DB
	codec *treeCodec
}

// Option configures Open
type Option func(*options)

type options struct {
	compressionLevel int
}

// WithCompressionLevel sets the zstd level used for snapshot file trees
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		o.compressionLevel = level
	}
}

// Open creates or opens a SQLite database at the given path
func Open(path string, opts ...Option) (*Database, error) {
	o := options{compressionLevel: 3}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	codec, err := newTreeCodec(o.compressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init codec: %w", err)
	}

	d := &Database{db: db, codec: codec}
	if err := d.init(); err != nil {
		db.Close()
		return nil, err
	}

	return d, nil
}

// init creates the database schema. Version tables are append-only: there
// are no update or delete paths for file_versions or project_versions.
func (d *Database) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, timestamp);

	CREATE TABLE IF NOT EXISTS file_versions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL CHECK (version >= 1),
		message_id TEXT,
		timestamp INTEGER NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_file_versions_path ON file_versions(project_id, file_path, version);
	CREATE INDEX IF NOT EXISTS idx_file_versions_message ON file_versions(message_id);

	CREATE TABLE IF NOT EXISTS project_versions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		version INTEGER NOT NULL CHECK (version >= 1),
		description TEXT NOT NULL DEFAULT '',
		file_tree BLOB NOT NULL,
		files_count INTEGER NOT NULL,
		message_id TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_project_versions_version ON project_versions(project_id, version);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	d.codec.encoder.Close()
	d.codec.decoder.Close()
	return d.db.Close()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
