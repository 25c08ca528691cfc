package cycle

import (
	"log"
	"sort"
)

// Reconcile collapses overlapping cycle records from different fetch scopes
// (a recent scope returning the newest one or two cycles, and a full-history
// scope returning all of them) into one record per (card, start, end) key.
//
// When two records share a key the richer one wins:
//  1. a record with closing data (statement balance, minimum payment, or due
//     date) beats one without;
//  2. then the higher transaction count;
//  3. then the larger absolute total spend.
//
// Ties keep the record seen first, so callers feed full-history records
// before recent ones. The result is sorted by start date descending.
func Reconcile(cycles []*BillingCycle) []*BillingCycle {
	byKey := make(map[Key]*BillingCycle, len(cycles))
	dropped := 0

	for _, c := range cycles {
		key := KeyOf(c)
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = c
			continue
		}

		dropped++
		if richer(c, existing) {
			byKey[key] = c
		}
	}

	out := make([]*BillingCycle, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].CardID < out[j].CardID
	})

	if dropped > 0 {
		log.Printf("Cycle reconciliation collapsed %d duplicate records into %d cycles", dropped, len(out))
	}

	return out
}

// richer reports whether candidate should replace current under the
// preference chain. A strict comparison: equal records keep current.
func richer(candidate, current *BillingCycle) bool {
	if candidate.HasClosingData() != current.HasClosingData() {
		return candidate.HasClosingData()
	}
	if candidate.TransactionCount != current.TransactionCount {
		return candidate.TransactionCount > current.TransactionCount
	}
	return candidate.TotalSpend.Abs().GreaterThan(current.TotalSpend.Abs())
}
