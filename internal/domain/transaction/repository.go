package transaction

import (
	"context"
	"time"
)

// Repository defines the storage contract for transactions. The interface
// deliberately has no delete operation: a sync must never remove stored
// transactions, regardless of what the aggregator's current window returns.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Transaction, error)
	ListByCardID(ctx context.Context, cardID int64, limit, offset int) ([]*Transaction, error)
	CountByCardID(ctx context.Context, cardID int64) (int64, error)

	// Upsert inserts or updates a single transaction keyed on id.
	Upsert(ctx context.Context, params UpsertParams) (*Transaction, error)

	// UpsertBatch writes many transactions as one conflict-resolving
	// statement. Callers fall back to per-record Upsert when the batch fails.
	UpsertBatch(ctx context.Context, params []UpsertParams) (int, error)

	// CountOlderThan counts stored transactions for a connection dated before
	// cutoff. This measures how much accumulated history a sync preserves
	// beyond the current fetch window.
	CountOlderThan(ctx context.Context, connectionID int64, cutoff time.Time) (int64, error)

	// EarliestDateByCard returns the oldest known transaction date for a
	// card, or nil when none exist.
	EarliestDateByCard(ctx context.Context, cardID int64) (*time.Time, error)
}
