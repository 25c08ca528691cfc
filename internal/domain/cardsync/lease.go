package cardsync

import (
	"context"
	"time"
)

// LeaseRepository serializes syncs per connection. A lease is a row-level
// advisory claim with an expiry, so a crashed worker can never wedge a
// connection forever.
type LeaseRepository interface {
	// Acquire claims the sync lease for a connection. It returns false when
	// another holder owns an unexpired lease.
	Acquire(ctx context.Context, connectionID int64, holder string, ttl time.Duration) (bool, error)

	// Release drops the lease if holder still owns it.
	Release(ctx context.Context, connectionID int64, holder string) error
}
