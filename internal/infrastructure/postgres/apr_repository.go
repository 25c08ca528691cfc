package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"cartera/internal/domain/card"
)

type APRRepository struct {
	db *DB
}

var _ card.APRRepository = (*APRRepository)(nil)

func NewAPRRepository(db *DB) *APRRepository {
	return &APRRepository{db: db}
}

func (r *APRRepository) ListByCardID(ctx context.Context, cardID int64) ([]*card.APR, error) {
	query := `
		SELECT id, card_id, apr_type, percentage, balance_subject_to_apr
		FROM card_aprs
		WHERE card_id = $1
		ORDER BY apr_type
	`

	rows, err := r.db.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list APRs: %w", err)
	}
	defer rows.Close()

	var aprs []*card.APR
	for rows.Next() {
		var a card.APR
		var balance sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.CardID, &a.APRType, &a.Percentage, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan APR: %w", err)
		}
		if balance.Valid {
			a.BalanceSubjectToAPR = &balance.Float64
		}
		aprs = append(aprs, &a)
	}
	return aprs, rows.Err()
}

// ReplaceForCard swaps the card's APR snapshot wholesale. APRs carry no
// history worth keeping; the latest aggregator view is the only truth.
func (r *APRRepository) ReplaceForCard(ctx context.Context, cardID int64, aprs []card.APR) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin APR replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM card_aprs WHERE card_id = $1`, cardID); err != nil {
		return fmt.Errorf("failed to clear APRs: %w", err)
	}

	for _, a := range aprs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO card_aprs (card_id, apr_type, percentage, balance_subject_to_apr)
			 VALUES ($1, $2, $3, $4)`,
			cardID, a.APRType, a.Percentage, a.BalanceSubjectToAPR)
		if err != nil {
			return fmt.Errorf("failed to insert APR: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit APR replace: %w", err)
	}
	return nil
}
