package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cartera/internal/domain/transaction"
)

// TransactionRepository persists transactions. It deliberately exposes no
// delete path: stored history outlives whatever window the aggregator is
// currently willing to return.
type TransactionRepository struct {
	db *DB
}

var _ transaction.Repository = (*TransactionRepository)(nil)

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, connection_id, card_id, amount, transaction_date, name,
	       merchant_name, category, subcategory, pending, needs_review, created_at, updated_at`

const transactionUpsertConflict = `
	ON CONFLICT (id) DO UPDATE SET
		card_id = EXCLUDED.card_id,
		amount = EXCLUDED.amount,
		transaction_date = EXCLUDED.transaction_date,
		name = EXCLUDED.name,
		merchant_name = EXCLUDED.merchant_name,
		category = EXCLUDED.category,
		subcategory = EXCLUDED.subcategory,
		pending = EXCLUDED.pending,
		needs_review = EXCLUDED.needs_review,
		updated_at = NOW()`

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) ListByCardID(ctx context.Context, cardID int64, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE card_id = $1
		ORDER BY transaction_date DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, cardID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *TransactionRepository) CountByCardID(ctx context.Context, cardID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE card_id = $1`, cardID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	query := `
		INSERT INTO transactions (id, connection_id, card_id, amount, transaction_date, name,
		                          merchant_name, category, subcategory, pending, needs_review)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)` +
		transactionUpsertConflict + `
		RETURNING ` + transactionColumns

	row := r.db.QueryRowContext(ctx, query,
		params.ID, params.ConnectionID, params.CardID, params.Amount, params.Date, params.Name,
		params.MerchantName, params.Category, params.Subcategory, params.Pending, params.NeedsReview)

	tx, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return tx, nil
}

// UpsertBatch writes all params in one multi-row statement. On conflict each
// row is updated in place, so re-syncing a window is idempotent.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, params []transaction.UpsertParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}

	const fieldsPerRow = 11
	var sb strings.Builder
	sb.WriteString(`INSERT INTO transactions (id, connection_id, card_id, amount, transaction_date, name,
		merchant_name, category, subcategory, pending, needs_review) VALUES `)

	args := make([]any, 0, len(params)*fieldsPerRow)
	for i, p := range params {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * fieldsPerRow
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args, p.ID, p.ConnectionID, p.CardID, p.Amount, p.Date, p.Name,
			p.MerchantName, p.Category, p.Subcategory, p.Pending, p.NeedsReview)
	}
	sb.WriteString(transactionUpsertConflict)

	result, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to batch upsert transactions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return len(params), nil
	}
	return int(affected), nil
}

func (r *TransactionRepository) CountOlderThan(ctx context.Context, connectionID int64, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE connection_id = $1 AND transaction_date < $2`,
		connectionID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count preserved transactions: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) EarliestDateByCard(ctx context.Context, cardID int64) (*time.Time, error) {
	var earliest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MIN(transaction_date) FROM transactions WHERE card_id = $1`, cardID).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest transaction date: %w", err)
	}
	if !earliest.Valid {
		return nil, nil
	}
	return &earliest.Time, nil
}

func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var cardID sql.NullInt64
	var merchantName, category, subcategory sql.NullString

	err := s.Scan(
		&tx.ID, &tx.ConnectionID, &cardID, &tx.Amount, &tx.Date, &tx.Name,
		&merchantName, &category, &subcategory, &tx.Pending, &tx.NeedsReview,
		&tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cardID.Valid {
		tx.CardID = &cardID.Int64
	}
	if merchantName.Valid {
		tx.MerchantName = &merchantName.String
	}
	if category.Valid {
		tx.Category = &category.String
	}
	if subcategory.Valid {
		tx.Subcategory = &subcategory.String
	}
	return &tx, nil
}
