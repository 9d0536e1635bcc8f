package database

import (
	"context"
	"database/sql"
	"fmt"

	"wainbox/internal/models"
)

const messageColumns = `id, workspace_id, conversation_id, instance_id, direction, body, type,
	   media_url, media_mime_type, media_size, duration_sec, external_id,
	   status, reply_to_id, quoted_snapshot, created_at, updated_at`

func (d *Database) scanMessage(row *sql.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.WorkspaceID,
		&msg.ConversationID,
		&msg.InstanceID,
		&msg.Direction,
		&msg.Body,
		&msg.Type,
		&msg.MediaURL,
		&msg.MediaMimeType,
		&msg.MediaSize,
		&msg.DurationSec,
		&msg.ExternalID,
		&msg.Status,
		&msg.ReplyToID,
		&msg.QuotedSnapshot,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	return msg, nil
}

// InsertMessage creates one message row. A UNIQUE violation on
// (workspace, instance, external_id) is the durable dedup backstop for
// at-least-once delivery: it returns (0, true, nil) and the caller ends the
// operation as a silent duplicate.
func (d *Database) InsertMessage(ctx context.Context, msg *models.Message) (int64, bool, error) {
	query := `
		INSERT INTO messages (
			workspace_id, conversation_id, instance_id, direction, body, type,
			media_url, media_mime_type, media_size, duration_sec,
			external_id, status, reply_to_id, quoted_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		msg.WorkspaceID,
		msg.ConversationID,
		msg.InstanceID,
		msg.Direction,
		msg.Body,
		msg.Type,
		msg.MediaURL,
		msg.MediaMimeType,
		msg.MediaSize,
		msg.DurationSec,
		msg.ExternalID,
		msg.Status,
		msg.ReplyToID,
		msg.QuotedSnapshot,
	)

	if isUniqueViolation(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get message id: %w", err)
	}

	return id, false, nil
}

func (d *Database) GetMessage(ctx context.Context, workspaceID string, id int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE workspace_id = ? AND id = ?`
	return d.scanMessage(d.db.QueryRowContext(ctx, query, workspaceID, id))
}

// GetMessageByExternalID finds a message by the provider-assigned id. Update
// events are matched through this lookup.
func (d *Database) GetMessageByExternalID(ctx context.Context, workspaceID string, instanceID int64, externalID string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE workspace_id = ? AND instance_id = ? AND external_id = ?
	`
	return d.scanMessage(d.db.QueryRowContext(ctx, query, workspaceID, instanceID, externalID))
}

// UpdateMessageStatus patches only the delivery status of an existing row.
func (d *Database) UpdateMessageStatus(ctx context.Context, workspaceID string, id int64, status models.MessageStatus) error {
	query := `UPDATE messages SET status = ? WHERE workspace_id = ? AND id = ?`

	result, err := d.db.ExecContext(ctx, query, status, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message found with id %d", id)
	}

	return nil
}

// UpdateMessageMedia fills in media fields from a side-channel fetch or a
// content-bearing update. Already-populated fields are never overwritten,
// and empty inputs never replace a NULL.
func (d *Database) UpdateMessageMedia(ctx context.Context, workspaceID string, id int64, mediaURL, mimeType string, size int64) error {
	query := `
		UPDATE messages
		SET media_url = COALESCE(media_url, NULLIF(?, '')),
			media_mime_type = COALESCE(media_mime_type, NULLIF(?, '')),
			media_size = COALESCE(media_size, NULLIF(?, 0))
		WHERE workspace_id = ? AND id = ?
	`

	if _, err := d.db.ExecContext(ctx, query, mediaURL, mimeType, size, workspaceID, id); err != nil {
		return fmt.Errorf("failed to update message media: %w", err)
	}

	return nil
}

// Conversation event audit trail

func (d *Database) AppendConversationEvent(ctx context.Context, event *models.ConversationEvent) error {
	query := `
		INSERT INTO conversation_events (workspace_id, conversation_id, event_type, payload)
		VALUES (?, ?, ?, ?)
	`

	if _, err := d.db.ExecContext(ctx, query,
		event.WorkspaceID,
		event.ConversationID,
		event.EventType,
		event.Payload,
	); err != nil {
		return fmt.Errorf("failed to append conversation event: %w", err)
	}

	return nil
}

// CleanupOldConversationEvents trims the audit trail; webhook_deliveries are
// kept forever, conversation_events are debugging aids with a retention.
func (d *Database) CleanupOldConversationEvents(retentionDays int) error {
	query := `
		DELETE FROM conversation_events
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`

	if _, err := d.db.Exec(query, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old conversation events: %w", err)
	}

	return nil
}
