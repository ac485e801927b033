// internal/database/file_versions.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

const fileVersionColumns = `id, project_id, file_path, file_name, content, is_deleted, version, message_id, timestamp, metadata`

// NextFileVersion returns 1 + the highest version stored for the path.
// Deleted and recreated paths keep counting up.
func (d *Database) NextFileVersion(ctx context.Context, projectID, filePath string) (int, error) {
	var next int
	err := d.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM file_versions
		WHERE project_id = ? AND file_path = ?`, projectID, filePath).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next file version: %w", err)
	}
	return next, nil
}

// AppendFileVersion stores a new revision. The version number is derived
// inside the INSERT from the stored maximum; any Version on the argument
// is ignored. The returned record carries the assigned version.
func (d *Database) AppendFileVersion(ctx context.Context, fv *FileVersion) (*FileVersion, error) {
	rec := *fv
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.FileName == "" {
		rec.FileName = path.Base(rec.FilePath)
	}
	if rec.IsDeleted {
		rec.Content = ""
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = d.db.QueryRowContext(ctx, `
			INSERT INTO file_versions (`+fileVersionColumns+`)
			SELECT ?, ?, ?, ?, ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?
			FROM file_versions WHERE project_id = ? AND file_path = ?
			RETURNING version`,
			rec.ID, rec.ProjectID, rec.FilePath, rec.FileName, rec.Content, rec.IsDeleted,
			nullableString(rec.MessageID), toUnixNano(rec.Timestamp), string(metadata),
			rec.ProjectID, rec.FilePath).Scan(&rec.Version)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || attempt >= maxVersionRetries {
			return nil, fmt.Errorf("append file version %s: %w", rec.FilePath, err)
		}
	}

	rec.Timestamp = fromUnixNano(toUnixNano(rec.Timestamp))
	return &rec, nil
}

// GetFileVersion retrieves a single revision by ID
func (d *Database) GetFileVersion(ctx context.Context, id string) (*FileVersion, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+fileVersionColumns+` FROM file_versions WHERE id = ?`, id)
	fv, err := scanFileVersion(row)
	if err != nil {
		return nil, notFound(err, "get file version")
	}
	return fv, nil
}

// LatestFileVersion returns the highest revision of a path. Unless
// includeDeleted is set, a path whose latest revision is a deletion is
// reported as ErrNotFound rather than falling back to older content.
func (d *Database) LatestFileVersion(ctx context.Context, projectID, filePath string, includeDeleted bool) (*FileVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions
		WHERE project_id = ? AND file_path = ?
		ORDER BY version DESC LIMIT 1`, projectID, filePath)

	fv, err := scanFileVersion(row)
	if err != nil {
		return nil, notFound(err, "latest file version")
	}
	if fv.IsDeleted && !includeDeleted {
		return nil, fmt.Errorf("latest file version %s is deleted: %w", filePath, ErrNotFound)
	}
	return fv, nil
}

// LatestFileVersionBefore returns the highest revision timestamped at or
// before cutoff. Deletion markers are returned as-is.
func (d *Database) LatestFileVersionBefore(ctx context.Context, projectID, filePath string, cutoff time.Time) (*FileVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions
		WHERE project_id = ? AND file_path = ? AND timestamp <= ?
		ORDER BY version DESC LIMIT 1`, projectID, filePath, toUnixNano(cutoff))

	fv, err := scanFileVersion(row)
	if err != nil {
		return nil, notFound(err, "latest file version before")
	}
	return fv, nil
}

// FilePaths returns every path ever written in the project, sorted
func (d *Database) FilePaths(ctx context.Context, projectID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT file_path FROM file_versions
		WHERE project_id = ? ORDER BY file_path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// FileVersionsByMessage returns the revisions a message produced
func (d *Database) FileVersionsByMessage(ctx context.Context, messageID string) ([]*FileVersion, error) {
	return d.queryFileVersions(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions
		WHERE message_id = ? ORDER BY file_path ASC, version DESC`, messageID)
}

// FileVersionHistory returns every revision of one path, newest first
func (d *Database) FileVersionHistory(ctx context.Context, projectID, filePath string) ([]*FileVersion, error) {
	return d.queryFileVersions(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions
		WHERE project_id = ? AND file_path = ? ORDER BY version DESC`, projectID, filePath)
}

// ProjectFileVersions returns every revision in a project grouped by path
func (d *Database) ProjectFileVersions(ctx context.Context, projectID string) ([]*FileVersion, error) {
	return d.queryFileVersions(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions
		WHERE project_id = ? ORDER BY file_path ASC, version DESC`, projectID)
}

// LatestFileVersions returns the newest revision of each path
func (d *Database) LatestFileVersions(ctx context.Context, projectID string, includeDeleted bool) ([]*FileVersion, error) {
	all, err := d.queryFileVersions(ctx, `
		SELECT `+fileVersionColumns+` FROM file_versions f
		WHERE f.project_id = ? AND f.version = (
			SELECT MAX(version) FROM file_versions
			WHERE project_id = f.project_id AND file_path = f.file_path
		)
		ORDER BY f.file_path ASC`, projectID)
	if err != nil || includeDeleted {
		return all, err
	}

	live := all[:0]
	for _, fv := range all {
		if !fv.IsDeleted {
			live = append(live, fv)
		}
	}
	return live, nil
}

func (d *Database) queryFileVersions(ctx context.Context, query string, args ...interface{}) ([]*FileVersion, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query file versions: %w", err)
	}
	defer rows.Close()

	var versions []*FileVersion
	for rows.Next() {
		fv, err := scanFileVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, fv)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFileVersion(row rowScanner) (*FileVersion, error) {
	fv := &FileVersion{}
	var messageID sql.NullString
	var ts int64
	var metadata string

	err := row.Scan(&fv.ID, &fv.ProjectID, &fv.FilePath, &fv.FileName, &fv.Content,
		&fv.IsDeleted, &fv.Version, &messageID, &ts, &metadata)
	if err != nil {
		return nil, err
	}

	fv.MessageID = messageID.String
	fv.Timestamp = fromUnixNano(ts)
	fv.Metadata = map[string]any{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &fv.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", fv.ID, err)
		}
	}
	return fv, nil
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
