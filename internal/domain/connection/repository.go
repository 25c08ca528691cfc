package connection

import (
	"context"
	"time"
)

// Repository defines the storage contract for connections.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Connection, error)
	GetByID(ctx context.Context, id int64) (*Connection, error)
	GetByItemID(ctx context.Context, itemID string) (*Connection, error)
	ListActive(ctx context.Context) ([]*Connection, error)

	// UpdateStatus records the connection lifecycle state together with the
	// last error, if any. Passing nil error fields clears them.
	UpdateStatus(ctx context.Context, id int64, status string, errorCode, errorMessage *string) error

	// UpdateAccessToken replaces the stored (encrypted) access token after a
	// credential refresh.
	UpdateAccessToken(ctx context.Context, id int64, encryptedToken string) error

	// TouchLastSynced records a completed sync attempt.
	TouchLastSynced(ctx context.Context, id int64, at time.Time) error

	// UpdateInstitution fills in institution identity discovered after link.
	UpdateInstitution(ctx context.Context, id int64, institutionID, institutionName string) error
}
