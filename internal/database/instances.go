package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wainbox/internal/models"
)

// GetInstanceByName looks up a provider instance inside a workspace. The
// ingestion path never creates instances; an unknown name means the event
// is ignored.
func (d *Database) GetInstanceByName(ctx context.Context, workspaceID, name string) (*models.Instance, error) {
	query := `
		SELECT id, workspace_id, name, phone, status, qr_code,
			   connected_at, disconnected_at, created_at, updated_at
		FROM instances
		WHERE workspace_id = ? AND name = ?
	`

	inst := &models.Instance{}
	err := d.db.QueryRowContext(ctx, query, workspaceID, name).Scan(
		&inst.ID,
		&inst.WorkspaceID,
		&inst.Name,
		&inst.Phone,
		&inst.Status,
		&inst.QrCode,
		&inst.ConnectedAt,
		&inst.DisconnectedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return inst, nil
}

// SaveInstance creates an instance row. Provisioning is out of band; this
// exists for setup tooling and tests.
func (d *Database) SaveInstance(ctx context.Context, inst *models.Instance) (int64, error) {
	query := `
		INSERT INTO instances (workspace_id, name, phone, status)
		VALUES (?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query, inst.WorkspaceID, inst.Name, inst.Phone, inst.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to save instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get instance id: %w", err)
	}

	return id, nil
}

// UpdateInstanceStatus applies a normalized connection-state transition and
// stamps the matching activity timestamp.
func (d *Database) UpdateInstanceStatus(ctx context.Context, instanceID int64, status models.InstanceStatus) error {
	now := time.Now().UTC()

	var query string
	switch status {
	case models.InstanceConnected:
		query = `UPDATE instances SET status = ?, connected_at = ?, qr_code = NULL WHERE id = ?`
	case models.InstanceDisconnected, models.InstanceError:
		query = `UPDATE instances SET status = ?, disconnected_at = ? WHERE id = ?`
	default:
		query = `UPDATE instances SET status = ?, updated_at = ? WHERE id = ?`
	}

	result, err := d.db.ExecContext(ctx, query, status, now, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no instance found with id %d", instanceID)
	}

	return nil
}

// UpdateInstanceQrCode stores the latest pairing payload and moves the
// instance into the pairing state.
func (d *Database) UpdateInstanceQrCode(ctx context.Context, instanceID int64, qrCode string) error {
	query := `UPDATE instances SET qr_code = ?, status = ? WHERE id = ?`

	if _, err := d.db.ExecContext(ctx, query, qrCode, models.InstancePairing, instanceID); err != nil {
		return fmt.Errorf("failed to update instance QR code: %w", err)
	}

	return nil
}
