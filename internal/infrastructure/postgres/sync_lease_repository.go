package postgres

import (
	"context"
	"fmt"
	"time"

	"cartera/internal/domain/cardsync"
)

// SyncLeaseRepository backs the per-connection sync lease with a single
// conflict-resolving row per connection. The WHERE clause on the conflict
// update makes takeover possible only once the previous lease expired.
type SyncLeaseRepository struct {
	db *DB
}

var _ cardsync.LeaseRepository = (*SyncLeaseRepository)(nil)

func NewSyncLeaseRepository(db *DB) *SyncLeaseRepository {
	return &SyncLeaseRepository{db: db}
}

func (r *SyncLeaseRepository) Acquire(ctx context.Context, connectionID int64, holder string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO sync_leases (connection_id, holder, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (connection_id) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE sync_leases.expires_at < NOW() OR sync_leases.holder = EXCLUDED.holder
	`

	result, err := r.db.ExecContext(ctx, query, connectionID, holder, int64(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease result: %w", err)
	}
	return affected == 1, nil
}

func (r *SyncLeaseRepository) Release(ctx context.Context, connectionID int64, holder string) error {
	query := `DELETE FROM sync_leases WHERE connection_id = $1 AND holder = $2`
	if _, err := r.db.ExecContext(ctx, query, connectionID, holder); err != nil {
		return fmt.Errorf("failed to release sync lease: %w", err)
	}
	return nil
}
