package cycle

import (
	"context"
)

// Repository defines the storage contract for billing cycles.
type Repository interface {
	ListByCardID(ctx context.Context, cardID int64) ([]*BillingCycle, error)

	// Upsert inserts or updates a cycle keyed on (card, start, end).
	Upsert(ctx context.Context, c *BillingCycle) (*BillingCycle, error)

	// ReplaceForCard atomically replaces a card's cycle set with the
	// reconciled canonical set.
	ReplaceForCard(ctx context.Context, cardID int64, cycles []*BillingCycle) error
}
