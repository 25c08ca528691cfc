package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"cartera/internal/domain/card"
)

type CardRepository struct {
	db *DB
}

var _ card.Repository = (*CardRepository)(nil)

func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db}
}

const cardColumns = `id, connection_id, external_account_id, name, official_name, mask,
	       current_balance, available_balance, credit_limit, manual_limit,
	       last_statement_balance, last_statement_date, next_payment_due_date,
	       minimum_payment, open_date, created_at, updated_at`

func (r *CardRepository) GetByID(ctx context.Context, id int64) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	c, err := scanCard(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return c, nil
}

func (r *CardRepository) GetByExternalID(ctx context.Context, externalAccountID string) (*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE external_account_id = $1`

	c, err := scanCard(r.db.QueryRowContext(ctx, query, externalAccountID))
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get card by external id: %w", err)
	}
	return c, nil
}

func (r *CardRepository) ListByConnectionID(ctx context.Context, connectionID int64) ([]*card.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE connection_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []*card.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// Upsert inserts or updates a card keyed on external account id. credit_limit
// is written even when NULL: absence of a limit is real data. manual_limit is
// cleared only when the sync produced a valid aggregator limit.
func (r *CardRepository) Upsert(ctx context.Context, params card.UpsertParams) (*card.Card, error) {
	query := `
		INSERT INTO cards (connection_id, external_account_id, name, official_name, mask,
		                   current_balance, available_balance, credit_limit,
		                   last_statement_balance, last_statement_date, next_payment_due_date,
		                   minimum_payment, open_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (external_account_id) DO UPDATE SET
			name = EXCLUDED.name,
			official_name = EXCLUDED.official_name,
			mask = EXCLUDED.mask,
			current_balance = EXCLUDED.current_balance,
			available_balance = EXCLUDED.available_balance,
			credit_limit = EXCLUDED.credit_limit,
			manual_limit = CASE WHEN $14 THEN NULL ELSE cards.manual_limit END,
			last_statement_balance = EXCLUDED.last_statement_balance,
			last_statement_date = EXCLUDED.last_statement_date,
			next_payment_due_date = EXCLUDED.next_payment_due_date,
			minimum_payment = EXCLUDED.minimum_payment,
			open_date = EXCLUDED.open_date,
			updated_at = NOW()
		RETURNING ` + cardColumns

	row := r.db.QueryRowContext(ctx, query,
		params.ConnectionID, params.ExternalAccountID, params.Name, params.OfficialName, params.Mask,
		params.CurrentBalance, params.AvailableBalance, params.CreditLimit,
		params.LastStatementBalance, params.LastStatementDate, params.NextPaymentDueDate,
		params.MinimumPayment, params.OpenDate, params.ClearManualLimit)

	c, err := scanCard(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert card: %w", err)
	}
	return c, nil
}

func (r *CardRepository) SetManualLimit(ctx context.Context, id int64, limit *float64) error {
	query := `UPDATE cards SET manual_limit = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, limit); err != nil {
		return fmt.Errorf("failed to set manual limit: %w", err)
	}
	return nil
}

// ReassignChildren moves every child row of a duplicate card onto the
// canonical one before the duplicate is removed.
func (r *CardRepository) ReassignChildren(ctx context.Context, fromCardID, toCardID int64) error {
	steps := []struct {
		query string
		args  []any
	}{
		{`UPDATE transactions SET card_id = $2 WHERE card_id = $1`, []any{fromCardID, toCardID}},
		// Move cycles the canonical card doesn't already cover; the rest are
		// duplicates of existing cycles and get dropped with the card.
		{`UPDATE billing_cycles SET card_id = $2 WHERE card_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM billing_cycles b
		      WHERE b.card_id = $2 AND b.start_date = billing_cycles.start_date AND b.end_date = billing_cycles.end_date
		  )`, []any{fromCardID, toCardID}},
		{`DELETE FROM billing_cycles WHERE card_id = $1`, []any{fromCardID}},
		{`DELETE FROM card_aprs WHERE card_id = $1`, []any{fromCardID}},
	}
	for _, step := range steps {
		if _, err := r.db.ExecContext(ctx, step.query, step.args...); err != nil {
			return fmt.Errorf("failed to reassign card children: %w", err)
		}
	}
	return nil
}

func (r *CardRepository) DeleteCard(ctx context.Context, id int64) error {
	query := `DELETE FROM cards WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete card: %w", err)
	}
	return nil
}

func scanCard(s scanner) (*card.Card, error) {
	var c card.Card
	var officialName, mask sql.NullString
	var currentBalance, availableBalance, creditLimit, manualLimit sql.NullFloat64
	var statementBalance, minimumPayment sql.NullFloat64
	var statementDate, dueDate, openDate sql.NullTime

	err := s.Scan(
		&c.ID, &c.ConnectionID, &c.ExternalAccountID, &c.Name, &officialName, &mask,
		&currentBalance, &availableBalance, &creditLimit, &manualLimit,
		&statementBalance, &statementDate, &dueDate,
		&minimumPayment, &openDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if officialName.Valid {
		c.OfficialName = &officialName.String
	}
	if mask.Valid {
		c.Mask = &mask.String
	}
	if currentBalance.Valid {
		c.CurrentBalance = &currentBalance.Float64
	}
	if availableBalance.Valid {
		c.AvailableBalance = &availableBalance.Float64
	}
	if creditLimit.Valid {
		c.CreditLimit = &creditLimit.Float64
	}
	if manualLimit.Valid {
		c.ManualLimit = &manualLimit.Float64
	}
	if statementBalance.Valid {
		c.LastStatementBalance = &statementBalance.Float64
	}
	if statementDate.Valid {
		c.LastStatementDate = &statementDate.Time
	}
	if dueDate.Valid {
		c.NextPaymentDueDate = &dueDate.Time
	}
	if minimumPayment.Valid {
		c.MinimumPayment = &minimumPayment.Float64
	}
	if openDate.Valid {
		c.OpenDate = &openDate.Time
	}
	return &c, nil
}
