// internal/database/messages.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateMessage stores a chat message, filling in ID and Timestamp when unset
func (d *Database) CreateMessage(ctx context.Context, msg *Message) (*Message, error) {
	m := *msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO messages (id, project_id, sender, body, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Sender, m.Body, toUnixNano(m.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	m.Timestamp = fromUnixNano(toUnixNano(m.Timestamp))
	return &m, nil
}

// GetMessage retrieves a message by ID
func (d *Database) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, project_id, sender, body, timestamp
		FROM messages WHERE id = ?`, id)

	m := &Message{}
	var ts int64
	if err := row.Scan(&m.ID, &m.ProjectID, &m.Sender, &m.Body, &ts); err != nil {
		return nil, notFound(err, "get message")
	}
	m.Timestamp = fromUnixNano(ts)
	return m, nil
}

// UpdateMessageBody replaces the body of a message. The timestamp is
// left alone so reconciliation boundaries do not move.
func (d *Database) UpdateMessageBody(ctx context.Context, id, body string) error {
	result, err := d.db.ExecContext(ctx, `UPDATE messages SET body = ? WHERE id = ?`, body, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update message %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMessages returns a project's messages oldest first
func (d *Database) ListMessages(ctx context.Context, projectID string) ([]*Message, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, project_id, sender, body, timestamp
		FROM messages WHERE project_id = ? ORDER BY timestamp ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		var ts int64
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Sender, &m.Body, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = fromUnixNano(ts)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
