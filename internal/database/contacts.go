package database

import (
	"context"
	"database/sql"
	"fmt"

	"wainbox/internal/models"
)

const contactColumns = `id, workspace_id, phone, name, avatar_url, created_at, updated_at`

func (d *Database) scanContact(row *sql.Row) (*models.Contact, error) {
	contact := &models.Contact{}
	err := row.Scan(
		&contact.ID,
		&contact.WorkspaceID,
		&contact.Phone,
		&contact.Name,
		&contact.AvatarURL,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	return contact, nil
}

func (d *Database) GetContactByPhone(ctx context.Context, workspaceID, phone string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = ? AND phone = ?`
	return d.scanContact(d.db.QueryRowContext(ctx, query, workspaceID, phone))
}

func (d *Database) GetContact(ctx context.Context, workspaceID string, id int64) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = ? AND id = ?`
	return d.scanContact(d.db.QueryRowContext(ctx, query, workspaceID, id))
}

// InsertContact creates a contact row. Concurrent creates under the same
// (workspace, phone) key race on the UNIQUE constraint; the duplicate flag
// tells the resolver to re-read by natural key instead of erroring.
func (d *Database) InsertContact(ctx context.Context, contact *models.Contact) (int64, bool, error) {
	query := `
		INSERT INTO contacts (workspace_id, phone, name, avatar_url)
		VALUES (?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		contact.WorkspaceID,
		contact.Phone,
		contact.Name,
		contact.AvatarURL,
	)

	if isUniqueViolation(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get contact id: %w", err)
	}

	return id, false, nil
}

// UpdateContactName overwrites the contact's display name. The "only fill
// blanks" rule is enforced by the resolver, not here.
func (d *Database) UpdateContactName(ctx context.Context, workspaceID string, id int64, name string) error {
	query := `UPDATE contacts SET name = ? WHERE workspace_id = ? AND id = ?`

	if _, err := d.db.ExecContext(ctx, query, name, workspaceID, id); err != nil {
		return fmt.Errorf("failed to update contact name: %w", err)
	}

	return nil
}

// UpdateContactAvatar sets the avatar reference only when none is stored yet.
func (d *Database) UpdateContactAvatar(ctx context.Context, workspaceID string, id int64, avatarURL string) error {
	query := `
		UPDATE contacts SET avatar_url = ?
		WHERE workspace_id = ? AND id = ? AND (avatar_url IS NULL OR avatar_url = '')
	`

	if _, err := d.db.ExecContext(ctx, query, avatarURL, workspaceID, id); err != nil {
		return fmt.Errorf("failed to update contact avatar: %w", err)
	}

	return nil
}
