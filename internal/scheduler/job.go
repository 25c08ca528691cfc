package scheduler

import "context"

// Job is a unit of work the worker pool can run. Sync jobs are the main
// implementation; cleanup or backfill jobs fit the same shape.
type Job interface {
	// Execute runs the job. Context should be respected for cancellation and
	// timeouts.
	Execute(ctx context.Context) error

	// ConnectionID returns the connection this job operates on, for logging
	// and tracking.
	ConnectionID() int64

	// Description returns a human-readable description of the job.
	Description() string
}
