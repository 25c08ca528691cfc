package card

import (
	"context"
)

// Repository defines the storage contract for cards.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Card, error)
	GetByExternalID(ctx context.Context, externalAccountID string) (*Card, error)
	ListByConnectionID(ctx context.Context, connectionID int64) ([]*Card, error)

	// Upsert inserts or updates a card keyed on external account id.
	Upsert(ctx context.Context, params UpsertParams) (*Card, error)

	// SetManualLimit records a user-entered credit limit override.
	SetManualLimit(ctx context.Context, id int64, limit *float64) error

	// ReassignChildren moves transactions, billing cycles, and APR records
	// from a duplicate card onto the canonical one.
	ReassignChildren(ctx context.Context, fromCardID, toCardID int64) error

	// DeleteCard removes a duplicate card after its children were reassigned.
	DeleteCard(ctx context.Context, id int64) error
}

// APRRepository defines the storage contract for APR snapshots.
type APRRepository interface {
	ListByCardID(ctx context.Context, cardID int64) ([]*APR, error)

	// ReplaceForCard atomically replaces all APR records for a card.
	ReplaceForCard(ctx context.Context, cardID int64, aprs []APR) error
}
