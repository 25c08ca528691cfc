package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"cartera/internal/domain/cardsync"
	"cartera/internal/domain/connection"
)

// ConnectionSyncJob syncs one connection through the card sync service.
type ConnectionSyncJob struct {
	conn    *connection.Connection
	service *cardsync.Service
}

var _ Job = (*ConnectionSyncJob)(nil)

func NewConnectionSyncJob(conn *connection.Connection, service *cardsync.Service) *ConnectionSyncJob {
	return &ConnectionSyncJob{conn: conn, service: service}
}

func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	outcome, err := j.service.SyncConnection(ctx, j.conn.ID)
	if err != nil {
		// Another worker already syncing this connection is not a failure
		// worth surfacing to the pool's error metrics.
		if errors.Is(err, cardsync.ErrSyncInProgress) {
			log.Printf("Sync job: connection %d already in progress, skipping", j.conn.ID)
			return nil
		}
		return fmt.Errorf("sync of connection %d: %w", j.conn.ID, err)
	}

	if outcome.Status == cardsync.OutcomeReconnectRequired {
		log.Printf("Sync job: connection %d (%s) needs user reconnection",
			j.conn.ID, j.conn.InstitutionName)
	}
	return nil
}

func (j *ConnectionSyncJob) ConnectionID() int64 {
	return j.conn.ID
}

func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("card sync (%s)", j.conn.InstitutionName)
}

// SyncJobProvider builds the nightly job set from the active connections.
func SyncJobProvider(connections connection.Repository, service *cardsync.Service) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		conns, err := connections.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing active connections: %w", err)
		}

		jobs := make([]Job, 0, len(conns))
		for _, conn := range conns {
			jobs = append(jobs, NewConnectionSyncJob(conn, service))
		}
		return jobs, nil
	}
}
