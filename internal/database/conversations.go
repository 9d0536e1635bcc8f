package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wainbox/internal/models"
)

const conversationColumns = `id, workspace_id, contact_id, instance_id, remote_jid, is_group,
	   unread_count, typing, last_message_at, created_at, updated_at`

func (d *Database) scanConversation(row *sql.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := row.Scan(
		&conv.ID,
		&conv.WorkspaceID,
		&conv.ContactID,
		&conv.InstanceID,
		&conv.RemoteJid,
		&conv.IsGroup,
		&conv.UnreadCount,
		&conv.Typing,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation: %w", err)
	}

	return conv, nil
}

func (d *Database) GetConversation(ctx context.Context, workspaceID string, id int64) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE workspace_id = ? AND id = ?`
	return d.scanConversation(d.db.QueryRowContext(ctx, query, workspaceID, id))
}

// GetConversationByRemoteJid finds the thread by its remote address. This is
// the authoritative lookup.
func (d *Database) GetConversationByRemoteJid(ctx context.Context, workspaceID string, instanceID int64, remoteJid string) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE workspace_id = ? AND instance_id = ? AND remote_jid = ?
	`
	return d.scanConversation(d.db.QueryRowContext(ctx, query, workspaceID, instanceID, remoteJid))
}

// GetConversationByContact is the fallback lookup for threads whose remote
// address was unknown at creation time.
func (d *Database) GetConversationByContact(ctx context.Context, workspaceID string, instanceID, contactID int64) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE workspace_id = ? AND instance_id = ? AND contact_id = ?
		ORDER BY id LIMIT 1
	`
	return d.scanConversation(d.db.QueryRowContext(ctx, query, workspaceID, instanceID, contactID))
}

// InsertConversation creates a thread row; a UNIQUE violation on
// (workspace, instance, remote_jid) signals a concurrent create and the
// caller re-reads by the same key.
func (d *Database) InsertConversation(ctx context.Context, conv *models.Conversation) (int64, bool, error) {
	query := `
		INSERT INTO conversations (workspace_id, contact_id, instance_id, remote_jid, is_group)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		conv.WorkspaceID,
		conv.ContactID,
		conv.InstanceID,
		conv.RemoteJid,
		conv.IsGroup,
	)

	if isUniqueViolation(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get conversation id: %w", err)
	}

	return id, false, nil
}

// BackfillConversationAddress fills in the remote address and group flag on
// a thread created before its address was known. Rows that already have an
// address are left alone.
func (d *Database) BackfillConversationAddress(ctx context.Context, workspaceID string, id int64, remoteJid string, isGroup bool) error {
	query := `
		UPDATE conversations SET remote_jid = ?, is_group = ?
		WHERE workspace_id = ? AND id = ? AND remote_jid IS NULL
	`

	if _, err := d.db.ExecContext(ctx, query, remoteJid, isGroup, workspaceID, id); err != nil {
		return fmt.Errorf("failed to backfill conversation address: %w", err)
	}

	return nil
}

// TouchConversation moves the thread to "most recent" and optionally bumps
// the unread counter. Called for every accepted upsert.
func (d *Database) TouchConversation(ctx context.Context, workspaceID string, id int64, at time.Time, incrementUnread bool) error {
	query := `
		UPDATE conversations
		SET last_message_at = ?,
			unread_count = unread_count + ?
		WHERE workspace_id = ? AND id = ?
	`

	increment := 0
	if incrementUnread {
		increment = 1
	}

	if _, err := d.db.ExecContext(ctx, query, at, increment, workspaceID, id); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return nil
}

func (d *Database) SetConversationTyping(ctx context.Context, workspaceID string, id int64, typing bool) error {
	query := `UPDATE conversations SET typing = ? WHERE workspace_id = ? AND id = ?`

	if _, err := d.db.ExecContext(ctx, query, typing, workspaceID, id); err != nil {
		return fmt.Errorf("failed to set conversation typing flag: %w", err)
	}

	return nil
}

func (d *Database) MarkConversationRead(ctx context.Context, workspaceID string, id int64) error {
	query := `UPDATE conversations SET unread_count = 0 WHERE workspace_id = ? AND id = ?`

	if _, err := d.db.ExecContext(ctx, query, workspaceID, id); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}

	return nil
}
