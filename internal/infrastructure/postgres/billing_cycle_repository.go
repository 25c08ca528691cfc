package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"cartera/internal/domain/cycle"
)

type BillingCycleRepository struct {
	db *DB
}

var _ cycle.Repository = (*BillingCycleRepository)(nil)

func NewBillingCycleRepository(db *DB) *BillingCycleRepository {
	return &BillingCycleRepository{db: db}
}

const cycleColumns = `id, card_id, start_date, end_date, total_spend, transaction_count,
	       statement_balance, minimum_payment, due_date, payment_status, created_at, updated_at`

func (r *BillingCycleRepository) ListByCardID(ctx context.Context, cardID int64) ([]*cycle.BillingCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM billing_cycles WHERE card_id = $1 ORDER BY start_date DESC`

	rows, err := r.db.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list billing cycles: %w", err)
	}
	defer rows.Close()

	var cycles []*cycle.BillingCycle
	for rows.Next() {
		c, err := scanBillingCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan billing cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

func (r *BillingCycleRepository) Upsert(ctx context.Context, c *cycle.BillingCycle) (*cycle.BillingCycle, error) {
	query := `
		INSERT INTO billing_cycles (card_id, start_date, end_date, total_spend, transaction_count,
		                            statement_balance, minimum_payment, due_date, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (card_id, start_date, end_date) DO UPDATE SET
			total_spend = EXCLUDED.total_spend,
			transaction_count = EXCLUDED.transaction_count,
			statement_balance = EXCLUDED.statement_balance,
			minimum_payment = EXCLUDED.minimum_payment,
			due_date = EXCLUDED.due_date,
			payment_status = EXCLUDED.payment_status,
			updated_at = NOW()
		RETURNING ` + cycleColumns

	row := r.db.QueryRowContext(ctx, query,
		c.CardID, c.StartDate, c.EndDate, c.TotalSpend, c.TransactionCount,
		decimalPtrValue(c.StatementBalance), decimalPtrValue(c.MinimumPayment), c.DueDate, c.PaymentStatus)

	stored, err := scanBillingCycle(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert billing cycle: %w", err)
	}
	return stored, nil
}

// ReplaceForCard swaps the card's cycle set for the reconciled canonical one
// in a single transaction, so readers never observe a half-replaced set.
func (r *BillingCycleRepository) ReplaceForCard(ctx context.Context, cardID int64, cycles []*cycle.BillingCycle) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cycle replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM billing_cycles WHERE card_id = $1`, cardID); err != nil {
		return fmt.Errorf("failed to clear billing cycles: %w", err)
	}

	for _, c := range cycles {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO billing_cycles (card_id, start_date, end_date, total_spend, transaction_count,
			                             statement_balance, minimum_payment, due_date, payment_status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			cardID, c.StartDate, c.EndDate, c.TotalSpend, c.TransactionCount,
			decimalPtrValue(c.StatementBalance), decimalPtrValue(c.MinimumPayment), c.DueDate, c.PaymentStatus)
		if err != nil {
			return fmt.Errorf("failed to insert billing cycle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle replace: %w", err)
	}
	return nil
}

func scanBillingCycle(s scanner) (*cycle.BillingCycle, error) {
	var c cycle.BillingCycle
	var statementBalance, minimumPayment sql.NullString
	var dueDate sql.NullTime

	err := s.Scan(
		&c.ID, &c.CardID, &c.StartDate, &c.EndDate, &c.TotalSpend, &c.TransactionCount,
		&statementBalance, &minimumPayment, &dueDate, &c.PaymentStatus,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if statementBalance.Valid {
		d, derr := decimal.NewFromString(statementBalance.String)
		if derr != nil {
			return nil, fmt.Errorf("invalid statement balance %q: %w", statementBalance.String, derr)
		}
		c.StatementBalance = &d
	}
	if minimumPayment.Valid {
		d, derr := decimal.NewFromString(minimumPayment.String)
		if derr != nil {
			return nil, fmt.Errorf("invalid minimum payment %q: %w", minimumPayment.String, derr)
		}
		c.MinimumPayment = &d
	}
	if dueDate.Valid {
		c.DueDate = &dueDate.Time
	}
	return &c, nil
}

// decimalPtrValue converts an optional decimal to a driver-friendly value.
func decimalPtrValue(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
