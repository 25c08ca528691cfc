package cardsync

import "errors"

// ErrRateLimitExceeded is returned when retries against a rate-limiting
// aggregator are exhausted. Callers typically degrade (keep partial data)
// rather than fail the whole sync.
var ErrRateLimitExceeded = errors.New("aggregator rate limit exceeded")

// ErrReconnectRequired is returned when the stored credential is invalid or
// expired. Not retried; the caller drives the reconnection flow.
var ErrReconnectRequired = errors.New("connection requires reconnection")

// ErrSyncInProgress is returned when another sync holds the connection's
// lease.
var ErrSyncInProgress = errors.New("sync already in progress for connection")
