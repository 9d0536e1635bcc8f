package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"wainbox/internal/migrations"
	"wainbox/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// isUniqueViolation reports whether an insert failed on a UNIQUE constraint.
// The idempotency gates treat this as a signal, not an error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Workspace operations

func (d *Database) GetWorkspaceByAPIKeyHash(ctx context.Context, keyHash string) (*models.Workspace, error) {
	query := `
		SELECT id, name, api_key_hash, created_at
		FROM workspaces
		WHERE api_key_hash = ?
	`

	ws := &models.Workspace{}
	err := d.db.QueryRowContext(ctx, query, keyHash).Scan(
		&ws.ID,
		&ws.Name,
		&ws.APIKeyHash,
		&ws.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace by API key: %w", err)
	}

	return ws, nil
}

func (d *Database) SaveWorkspace(ctx context.Context, ws *models.Workspace) error {
	query := `
		INSERT INTO workspaces (id, name, api_key_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, api_key_hash = excluded.api_key_hash
	`

	if _, err := d.db.ExecContext(ctx, query, ws.ID, ws.Name, ws.APIKeyHash); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}

	return nil
}
