package cycle

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TxPoint is the slice of a transaction the cycle builder needs.
type TxPoint struct {
	Date   time.Time
	Amount float64 // positive = spend, negative = payment/credit
}

// BuildFromTransactions groups transactions into statement periods for one
// card. Periods are anchored on the day-of-month of the last known statement
// date; without one, calendar months are used. Spend totals sum only positive
// amounts; payments and credits are not spend. Statement fields stay empty:
// the sync attaches closing data to the newest cycle separately, and the
// reconciler merges the two views.
func BuildFromTransactions(cardID int64, txs []TxPoint, lastStatementDate *time.Time) []*BillingCycle {
	if len(txs) == 0 {
		return nil
	}

	anchorDay := 1
	if lastStatementDate != nil {
		anchorDay = lastStatementDate.Day()
	}

	type bucket struct {
		start, end time.Time
		spend      decimal.Decimal
		count      int
	}
	buckets := make(map[string]*bucket)

	for _, tx := range txs {
		end := cycleEndFor(tx.Date, anchorDay)
		start := previousCycleEnd(end, anchorDay).AddDate(0, 0, 1)
		key := end.Format("2006-01-02")

		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: start, end: end}
			buckets[key] = b
		}
		b.count++
		if tx.Amount > 0 {
			b.spend = b.spend.Add(decimal.NewFromFloat(tx.Amount))
		}
	}

	out := make([]*BillingCycle, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, &BillingCycle{
			CardID:           cardID,
			StartDate:        b.start,
			EndDate:          b.end,
			TotalSpend:       b.spend,
			TransactionCount: b.count,
			PaymentStatus:    PaymentStatusCurrent,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})

	return out
}

// cycleEndFor finds the first anchor-day boundary on or after date.
func cycleEndFor(date time.Time, anchorDay int) time.Time {
	end := dayInMonth(date.Year(), date.Month(), anchorDay)
	if end.Before(truncateDay(date)) {
		next := date.AddDate(0, 1, 0)
		end = dayInMonth(next.Year(), next.Month(), anchorDay)
	}
	return end
}

// previousCycleEnd returns the anchor boundary one period before end.
func previousCycleEnd(end time.Time, anchorDay int) time.Time {
	prev := end.AddDate(0, -1, 0)
	return dayInMonth(prev.Year(), prev.Month(), anchorDay)
}

// dayInMonth clamps day to the month's length (statement day 31 in February
// becomes the 28th/29th).
func dayInMonth(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
