package cardsync

import (
	"context"
	"fmt"
	"log"
	"time"

	"cartera/internal/infrastructure/aggregator"
)

// FetchStatus is the terminal state of a chunked fetch. A failed chunk never
// aborts the fetch; it only shrinks the result set.
type FetchStatus int

const (
	FetchNotStarted FetchStatus = iota
	FetchDone
	FetchPartialFailure
)

func (s FetchStatus) String() string {
	switch s {
	case FetchNotStarted:
		return "not_started"
	case FetchDone:
		return "done"
	case FetchPartialFailure:
		return "partial_failure"
	}
	return "unknown"
}

// FetchResult carries everything a chunked fetch produced, including how much
// of the requested window was actually attempted.
type FetchResult struct {
	Transactions []aggregator.Transaction
	Status       FetchStatus
	// WindowStart is the effective (possibly clamped) start of the fetch.
	WindowStart  time.Time
	WindowEnd    time.Time
	ChunksTotal  int
	ChunksFailed int
	Errors       []string
}

// Fetcher issues date-bounded transaction fetches sized per institution
// class.
type Fetcher struct {
	client          aggregator.ClientInterface
	retry           *Executor
	interChunkDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher. interChunkDelay spaces sequential chunk calls
// to stay clear of the institution's rate-limit budget.
func NewFetcher(client aggregator.ClientInterface, retry *Executor, interChunkDelay time.Duration) *Fetcher {
	return &Fetcher{
		client:          client,
		retry:           retry,
		interChunkDelay: interChunkDelay,
		now:             time.Now,
		sleep:           sleepContext,
	}
}

// FetchTransactions fetches all transactions in [start, end] for an item,
// clamped and chunked per the institution policy. Chunks run sequentially;
// a failed chunk is logged and skipped so partial data survives. A
// credential error is the one exception: nothing further can succeed, so it
// returns immediately with whatever was fetched and ErrReconnectRequired.
func (f *Fetcher) FetchTransactions(ctx context.Context, accessToken string, start, end time.Time, policy InstitutionPolicy) (*FetchResult, error) {
	today := truncateToDay(f.now())
	if end.After(today) {
		end = today
	}

	earliest := today.AddDate(0, 0, -policy.MaxLookbackDays)
	if start.Before(earliest) {
		if policy.RestrictedHistory {
			log.Printf("Institution %s: clamping start %s to %s (restricted history, %d-day cap)",
				policy.Name, start.Format("2006-01-02"), earliest.Format("2006-01-02"), policy.MaxLookbackDays)
		}
		start = earliest
	}

	result := &FetchResult{Status: FetchNotStarted, WindowStart: start, WindowEnd: end}
	if start.After(end) {
		result.Status = FetchDone
		return result, nil
	}

	chunks := f.buildChunks(start, end, policy)
	result.ChunksTotal = len(chunks)

	for i, chunk := range chunks {
		if i > 0 && f.interChunkDelay > 0 {
			if err := f.sleep(ctx, f.interChunkDelay); err != nil {
				result.Status = FetchPartialFailure
				return result, err
			}
		}

		txs, err := f.fetchChunk(ctx, accessToken, chunk.start, chunk.end)
		if err != nil {
			if aggregator.IsReconnectRequired(err) {
				result.ChunksFailed = result.ChunksTotal - i
				result.Status = FetchPartialFailure
				return result, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), ErrReconnectRequired)
			}

			result.ChunksFailed++
			msg := fmt.Sprintf("chunk %d/%d (%s..%s) failed: %v",
				i+1, len(chunks), chunk.start.Format("2006-01-02"), chunk.end.Format("2006-01-02"), err)
			result.Errors = append(result.Errors, msg)
			log.Printf("Fetch %s: %s, continuing with partial data", policy.Name, msg)
			continue
		}

		result.Transactions = append(result.Transactions, txs...)
	}

	if result.ChunksFailed > 0 {
		result.Status = FetchPartialFailure
	} else {
		result.Status = FetchDone
	}

	f.validateSpan(result, policy)

	log.Printf("Fetch %s: %d transactions across %d chunks (%d failed), window %s..%s",
		policy.Name, len(result.Transactions), result.ChunksTotal, result.ChunksFailed,
		result.WindowStart.Format("2006-01-02"), result.WindowEnd.Format("2006-01-02"))

	return result, nil
}

type dateChunk struct {
	start, end time.Time
}

// buildChunks splits the window. Restricted-history institutions cap the
// whole window anyway, so chunking them only adds calls.
func (f *Fetcher) buildChunks(start, end time.Time, policy InstitutionPolicy) []dateChunk {
	if policy.RestrictedHistory {
		return []dateChunk{{start: start, end: end}}
	}

	chunkDays := policy.ChunkDays
	if chunkDays <= 0 {
		chunkDays = standardChunkDays
	}

	var chunks []dateChunk
	for cursor := start; !cursor.After(end); {
		chunkEnd := cursor.AddDate(0, 0, chunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, dateChunk{start: cursor, end: chunkEnd})
		cursor = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks
}

// fetchChunk pulls one date range, concatenating pages, with every call
// routed through the retry executor.
func (f *Fetcher) fetchChunk(ctx context.Context, accessToken string, start, end time.Time) ([]aggregator.Transaction, error) {
	var all []aggregator.Transaction
	offset := 0

	for {
		var page *aggregator.TransactionsResponse
		err := f.retry.Do(ctx, "transactions/get", func(ctx context.Context) error {
			var callErr error
			page, callErr = f.client.GetTransactions(ctx, accessToken, start, end, aggregator.TransactionsPageSize, offset)
			return callErr
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Transactions...)
		offset += len(page.Transactions)

		if offset >= page.TotalTransactions || len(page.Transactions) == 0 {
			return all, nil
		}
	}
}

// validateSpan warns when a restricted institution returned a conspicuously
// shorter span than its cap suggests. Non-fatal: some accounts genuinely have
// little history.
func (f *Fetcher) validateSpan(result *FetchResult, policy InstitutionPolicy) {
	if !policy.RestrictedHistory || len(result.Transactions) == 0 {
		return
	}

	var oldest, newest time.Time
	for i := range result.Transactions {
		d, err := result.Transactions[i].GetDate()
		if err != nil || d == nil {
			continue
		}
		if oldest.IsZero() || d.Before(oldest) {
			oldest = *d
		}
		if newest.IsZero() || d.After(newest) {
			newest = *d
		}
	}
	if oldest.IsZero() {
		return
	}

	covered := int(newest.Sub(oldest).Hours() / 24)
	expected := int(result.WindowEnd.Sub(result.WindowStart).Hours() / 24)
	if expected > 0 && covered < expected/2 {
		log.Printf("Warning: institution %s returned %d days of history, expected up to %d; integration may be capping harder than documented",
			policy.Name, covered, expected)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
