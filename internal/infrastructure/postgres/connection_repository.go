package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cartera/internal/domain/connection"
)

type ConnectionRepository struct {
	db *DB
}

var _ connection.Repository = (*ConnectionRepository)(nil)

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, item_id, institution_id, institution_name, access_token,
	       status, last_synced_at, last_error_code, last_error_message, created_at, updated_at`

func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	query := `
		INSERT INTO connections (user_id, item_id, institution_id, institution_name, access_token, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING ` + connectionColumns

	row := r.db.QueryRowContext(ctx, query,
		params.UserID, params.ItemID, params.InstitutionID, params.InstitutionName, params.AccessToken)

	conn, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id int64) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE item_id = $1`

	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, itemID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection by item: %w", err)
	}
	return conn, nil
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE status = 'active' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepository) UpdateStatus(ctx context.Context, id int64, status string, errorCode, errorMessage *string) error {
	query := `
		UPDATE connections
		SET status = $2, last_error_code = $3, last_error_message = $4, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, status, errorCode, errorMessage); err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) UpdateAccessToken(ctx context.Context, id int64, encryptedToken string) error {
	query := `UPDATE connections SET access_token = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, encryptedToken); err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) TouchLastSynced(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE connections SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}

func (r *ConnectionRepository) UpdateInstitution(ctx context.Context, id int64, institutionID, institutionName string) error {
	query := `
		UPDATE connections
		SET institution_id = $2, institution_name = $3, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, institutionID, institutionName); err != nil {
		return fmt.Errorf("failed to update institution: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(s scanner) (*connection.Connection, error) {
	var conn connection.Connection
	var lastSyncedAt sql.NullTime
	var errorCode, errorMessage sql.NullString

	err := s.Scan(
		&conn.ID, &conn.UserID, &conn.ItemID, &conn.InstitutionID, &conn.InstitutionName,
		&conn.AccessToken, &conn.Status, &lastSyncedAt, &errorCode, &errorMessage,
		&conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncedAt.Valid {
		conn.LastSyncedAt = &lastSyncedAt.Time
	}
	if errorCode.Valid {
		conn.LastErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		conn.LastErrorMessage = &errorMessage.String
	}
	return &conn, nil
}
