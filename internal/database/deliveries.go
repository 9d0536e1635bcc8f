package database

import (
	"context"
	"fmt"

	"wainbox/internal/models"
)

// RecordDelivery inserts one webhook delivery row before any domain
// processing. A UNIQUE violation on (workspace_id, delivery_key) is the
// idempotency signal: it returns (0, true, nil) and the caller must stop
// with a duplicate-success response. Any other failure is a hard error.
func (d *Database) RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery) (int64, bool, error) {
	query := `
		INSERT INTO webhook_deliveries (
			workspace_id, provider, event_type, instance_name,
			delivery_key, payload, headers, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		delivery.WorkspaceID,
		delivery.Provider,
		delivery.EventType,
		delivery.Instance,
		delivery.DeliveryKey,
		delivery.Payload,
		delivery.Headers,
		models.DeliveryReceived,
	)

	if isUniqueViolation(err) {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to record delivery: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get delivery id: %w", err)
	}

	return id, false, nil
}

// MarkDelivery sets the terminal status of a delivery row. Callers treat a
// failure here as best-effort; the event itself was already applied.
func (d *Database) MarkDelivery(ctx context.Context, id int64, status models.DeliveryStatus, errMsg string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = ?, error = NULLIF(?, '')
		WHERE id = ?
	`

	if _, err := d.db.ExecContext(ctx, query, status, errMsg, id); err != nil {
		return fmt.Errorf("failed to mark delivery: %w", err)
	}

	return nil
}

// GetDelivery retrieves one delivery row by id.
func (d *Database) GetDelivery(ctx context.Context, id int64) (*models.WebhookDelivery, error) {
	query := `
		SELECT id, workspace_id, provider, event_type, instance_name,
			   delivery_key, payload, headers, status, error,
			   created_at, updated_at
		FROM webhook_deliveries
		WHERE id = ?
	`

	delivery := &models.WebhookDelivery{}
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&delivery.ID,
		&delivery.WorkspaceID,
		&delivery.Provider,
		&delivery.EventType,
		&delivery.Instance,
		&delivery.DeliveryKey,
		&delivery.Payload,
		&delivery.Headers,
		&delivery.Status,
		&delivery.Error,
		&delivery.CreatedAt,
		&delivery.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}

	return delivery, nil
}

// CountDeliveriesByStatus returns the number of delivery rows per terminal
// status for one workspace. Used by the metrics handler.
func (d *Database) CountDeliveriesByStatus(ctx context.Context, workspaceID string) (map[models.DeliveryStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM webhook_deliveries
		WHERE workspace_id = ?
		GROUP BY status
	`

	rows, err := d.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DeliveryStatus]int)
	for rows.Next() {
		var status models.DeliveryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan delivery count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
