package cardsync

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"cartera/internal/domain/card"
	"cartera/internal/domain/transaction"
	"cartera/internal/infrastructure/aggregator"
)

// maxPlausibleAmount rejects amounts that are clearly data corruption rather
// than real card activity.
const maxPlausibleAmount = 1_000_000

// AccumulateResult summarizes one accumulation pass.
type AccumulateResult struct {
	Stored    int
	Skipped   int
	Unlinked  int
	Preserved int64
}

// Accumulator writes fetched transactions to storage without ever deleting
// what previous syncs stored.
type Accumulator struct {
	transactions transaction.Repository
}

func NewAccumulator(transactions transaction.Repository) *Accumulator {
	return &Accumulator{transactions: transactions}
}

// Accumulate upserts the fetched transactions for a connection. cardsByExternal
// maps aggregator account ids to stored cards; transactions for unknown
// accounts are stored unlinked rather than dropped. windowStart is the oldest
// date of the current fetch window, used only to report how much older history
// the pass preserved.
func (a *Accumulator) Accumulate(ctx context.Context, connectionID int64, cardsByExternal map[string]*card.Card, txs []aggregator.Transaction, windowStart time.Time) (*AccumulateResult, error) {
	result := &AccumulateResult{}
	params := make([]transaction.UpsertParams, 0, len(txs))

	for i := range txs {
		p, ok := a.toParams(connectionID, cardsByExternal, &txs[i])
		if !ok {
			result.Skipped++
			continue
		}
		if p.CardID == nil {
			result.Unlinked++
		}
		params = append(params, p)
	}

	if len(params) > 0 {
		stored, err := a.transactions.UpsertBatch(ctx, params)
		if err != nil {
			log.Printf("Batch upsert failed for connection %d, falling back to per-record writes: %v", connectionID, err)
			stored = 0
			for _, p := range params {
				if _, uerr := a.transactions.Upsert(ctx, p); uerr != nil {
					log.Printf("Skipping transaction %s: %v", p.ID, uerr)
					result.Skipped++
					continue
				}
				stored++
			}
		}
		result.Stored = stored
	}

	preserved, err := a.transactions.CountOlderThan(ctx, connectionID, windowStart)
	if err != nil {
		return result, fmt.Errorf("counting preserved history: %w", err)
	}
	result.Preserved = preserved
	if preserved > 0 {
		log.Printf("Connection %d: %d transactions older than %s preserved outside the fetch window",
			connectionID, preserved, windowStart.Format("2006-01-02"))
	}

	return result, nil
}

// toParams validates one aggregator transaction and converts it for storage.
// Returns ok=false when the record must be skipped entirely.
func (a *Accumulator) toParams(connectionID int64, cardsByExternal map[string]*card.Card, tx *aggregator.Transaction) (transaction.UpsertParams, bool) {
	if tx.TransactionID == "" {
		log.Printf("Skipping transaction with empty id on connection %d", connectionID)
		return transaction.UpsertParams{}, false
	}

	amount, ok := tx.Amount.Float()
	if !ok || math.IsNaN(amount) || math.IsInf(amount, 0) {
		log.Printf("Skipping transaction %s: amount missing or not numeric", tx.TransactionID)
		return transaction.UpsertParams{}, false
	}
	if math.Abs(amount) > maxPlausibleAmount {
		log.Printf("Skipping transaction %s: amount %.2f outside plausible range", tx.TransactionID, amount)
		return transaction.UpsertParams{}, false
	}

	date, err := tx.GetDate()
	if err != nil || date == nil {
		log.Printf("Skipping transaction %s: unparseable date %q", tx.TransactionID, tx.DateString)
		return transaction.UpsertParams{}, false
	}

	var cardID *int64
	if c, found := cardsByExternal[tx.AccountID]; found {
		cardID = &c.ID
	} else {
		log.Printf("Transaction %s references unknown account %s, storing unlinked", tx.TransactionID, tx.AccountID)
	}

	var merchant *string
	if tx.MerchantName != nil && *tx.MerchantName != "" {
		merchant = tx.MerchantName
	}
	var category, subcategory *string
	if len(tx.Category) > 0 {
		c := tx.Category[0]
		category = &c
		if len(tx.Category) > 1 {
			s := tx.Category[1]
			subcategory = &s
		}
	}

	return transaction.UpsertParams{
		ID:           tx.TransactionID,
		ConnectionID: connectionID,
		CardID:       cardID,
		Amount:       amount,
		Date:         *date,
		Name:         tx.Name,
		MerchantName: merchant,
		Category:     category,
		Subcategory:  subcategory,
		Pending:      tx.Pending,
		// Zero amounts are kept but flagged: they are usually authorization
		// holds or aggregator artifacts and distort spend math if trusted.
		NeedsReview: amount == 0,
	}, true
}
