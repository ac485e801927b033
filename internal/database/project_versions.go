// internal/database/project_versions.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LatestProjectVersion returns the highest-numbered snapshot with its tree
func (d *Database) LatestProjectVersion(ctx context.Context, projectID string) (*ProjectVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, description, files_count, message_id, created_at, file_tree
		FROM project_versions WHERE project_id = ?
		ORDER BY version DESC LIMIT 1`, projectID)

	pv, err := d.scanProjectVersion(row)
	if err != nil {
		return nil, notFound(err, "latest project version")
	}
	return pv, nil
}

// CreateProjectVersion persists a snapshot. As with file versions the
// number is derived at insert time; pv.Version is ignored. FilesCount is
// always len(FileTree).
func (d *Database) CreateProjectVersion(ctx context.Context, pv *ProjectVersion) (*ProjectVersion, error) {
	rec := *pv
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.FileTree == nil {
		rec.FileTree = map[string]SnapshotFile{}
	}
	rec.FilesCount = len(rec.FileTree)

	blob, err := d.codec.encode(rec.FileTree)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		err = d.db.QueryRowContext(ctx, `
			INSERT INTO project_versions (id, project_id, version, description, file_tree, files_count, message_id, created_at)
			SELECT ?, ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?, ?, ?
			FROM project_versions WHERE project_id = ?
			RETURNING version`,
			rec.ID, rec.ProjectID, rec.Description, blob, rec.FilesCount,
			nullableString(rec.MessageID), toUnixNano(rec.CreatedAt), rec.ProjectID).Scan(&rec.Version)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || attempt >= maxVersionRetries {
			return nil, fmt.Errorf("create project version: %w", err)
		}
	}

	rec.CreatedAt = fromUnixNano(toUnixNano(rec.CreatedAt))
	return &rec, nil
}

// ListProjectVersions returns snapshots newest first without their trees
func (d *Database) ListProjectVersions(ctx context.Context, projectID string) ([]*ProjectVersion, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, project_id, version, description, files_count, message_id, created_at
		FROM project_versions WHERE project_id = ?
		ORDER BY version DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project versions: %w", err)
	}
	defer rows.Close()

	var versions []*ProjectVersion
	for rows.Next() {
		pv := &ProjectVersion{}
		var messageID sql.NullString
		var createdAt int64
		if err := rows.Scan(&pv.ID, &pv.ProjectID, &pv.Version, &pv.Description,
			&pv.FilesCount, &messageID, &createdAt); err != nil {
			return nil, err
		}
		pv.MessageID = messageID.String
		pv.CreatedAt = fromUnixNano(createdAt)
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

// GetProjectVersion retrieves one snapshot. The project ID is part of the
// lookup so a version ID from another project is never returned.
func (d *Database) GetProjectVersion(ctx context.Context, projectID, versionID string) (*ProjectVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, description, files_count, message_id, created_at, file_tree
		FROM project_versions WHERE id = ? AND project_id = ?`, versionID, projectID)

	pv, err := d.scanProjectVersion(row)
	if err != nil {
		return nil, notFound(err, "get project version")
	}
	return pv, nil
}

// GetProjectVersionByNumber retrieves a snapshot by its per-project number
func (d *Database) GetProjectVersionByNumber(ctx context.Context, projectID string, version int) (*ProjectVersion, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, version, description, files_count, message_id, created_at, file_tree
		FROM project_versions WHERE project_id = ? AND version = ?`, projectID, version)

	pv, err := d.scanProjectVersion(row)
	if err != nil {
		return nil, notFound(err, "get project version by number")
	}
	return pv, nil
}

func (d *Database) scanProjectVersion(row rowScanner) (*ProjectVersion, error) {
	pv := &ProjectVersion{}
	var messageID sql.NullString
	var createdAt int64
	var blob []byte

	err := row.Scan(&pv.ID, &pv.ProjectID, &pv.Version, &pv.Description,
		&pv.FilesCount, &messageID, &createdAt, &blob)
	if err != nil {
		return nil, err
	}

	pv.MessageID = messageID.String
	pv.CreatedAt = fromUnixNano(createdAt)
	pv.FileTree, err = d.codec.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("project version %s: %w", pv.ID, err)
	}
	return pv, nil
}
