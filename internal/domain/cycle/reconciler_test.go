package cycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func openCycle(cardID int64, start, end time.Time, spend float64, count int) *BillingCycle {
	return &BillingCycle{
		CardID:           cardID,
		StartDate:        start,
		EndDate:          end,
		TotalSpend:       decimal.NewFromFloat(spend),
		TransactionCount: count,
		PaymentStatus:    PaymentStatusCurrent,
	}
}

func closedCycle(cardID int64, start, end time.Time, spend float64, count int, statement float64) *BillingCycle {
	c := openCycle(cardID, start, end, spend, count)
	bal := decimal.NewFromFloat(statement)
	due := end.AddDate(0, 0, 21)
	c.StatementBalance = &bal
	c.DueDate = &due
	c.PaymentStatus = PaymentStatusDue
	return c
}

func TestReconcile_ClosingDataWins(t *testing.T) {
	start, end := day(2025, 7, 16), day(2025, 8, 15)

	// Full-history scope produced spend totals only; the recent scope caught
	// the statement closing. The closed record must survive.
	sparse := openCycle(1, start, end, 812.40, 17)
	closed := closedCycle(1, start, end, 790.10, 14, 802.55)

	out := Reconcile([]*BillingCycle{sparse, closed})

	require.Len(t, out, 1)
	require.NotNil(t, out[0].StatementBalance)
	assert.True(t, out[0].StatementBalance.Equal(decimal.NewFromFloat(802.55)))
	assert.NotNil(t, out[0].DueDate)
}

func TestReconcile_TransactionCountBreaksTie(t *testing.T) {
	start, end := day(2025, 7, 16), day(2025, 8, 15)

	fewer := openCycle(1, start, end, 500, 10)
	more := openCycle(1, start, end, 480, 25)

	out := Reconcile([]*BillingCycle{fewer, more})

	require.Len(t, out, 1)
	assert.Equal(t, 25, out[0].TransactionCount)
}

func TestReconcile_AbsoluteSpendBreaksRemainingTie(t *testing.T) {
	start, end := day(2025, 7, 16), day(2025, 8, 15)

	smaller := openCycle(1, start, end, -120.00, 8)
	larger := openCycle(1, start, end, -340.00, 8)

	out := Reconcile([]*BillingCycle{smaller, larger})

	require.Len(t, out, 1)
	assert.True(t, out[0].TotalSpend.Equal(decimal.NewFromFloat(-340.00)))
}

func TestReconcile_FullTieKeepsFirstSeen(t *testing.T) {
	start, end := day(2025, 7, 16), day(2025, 8, 15)

	first := openCycle(1, start, end, 100, 5)
	second := openCycle(1, start, end, 100, 5)
	second.PaymentStatus = PaymentStatusOutstanding // marker

	out := Reconcile([]*BillingCycle{first, second})

	require.Len(t, out, 1)
	assert.Equal(t, PaymentStatusCurrent, out[0].PaymentStatus)
}

func TestReconcile_DistinctKeysAllKept(t *testing.T) {
	cycles := []*BillingCycle{
		openCycle(1, day(2025, 6, 16), day(2025, 7, 15), 300, 12),
		openCycle(1, day(2025, 7, 16), day(2025, 8, 15), 400, 9),
		openCycle(2, day(2025, 7, 16), day(2025, 8, 15), 400, 9), // other card, same dates
	}

	out := Reconcile(cycles)
	assert.Len(t, out, 3)
}

func TestReconcile_SortedByStartDateDescending(t *testing.T) {
	cycles := []*BillingCycle{
		openCycle(1, day(2025, 5, 16), day(2025, 6, 15), 100, 3),
		openCycle(1, day(2025, 7, 16), day(2025, 8, 15), 300, 5),
		openCycle(1, day(2025, 6, 16), day(2025, 7, 15), 200, 4),
	}

	out := Reconcile(cycles)

	require.Len(t, out, 3)
	assert.Equal(t, day(2025, 7, 16), out[0].StartDate)
	assert.Equal(t, day(2025, 6, 16), out[1].StartDate)
	assert.Equal(t, day(2025, 5, 16), out[2].StartDate)
}

func TestBuildFromTransactions_AnchoredOnStatementDay(t *testing.T) {
	statement := day(2025, 8, 15)
	txs := []TxPoint{
		{Date: day(2025, 8, 10), Amount: 50},    // closes 2025-08-15
		{Date: day(2025, 8, 20), Amount: 75},    // closes 2025-09-15
		{Date: day(2025, 8, 22), Amount: -30},   // payment, counted but not spend
		{Date: day(2025, 7, 20), Amount: 120.5}, // closes 2025-08-15
	}

	out := BuildFromTransactions(7, txs, &statement)

	require.Len(t, out, 2)
	// Newest cycle first.
	assert.Equal(t, day(2025, 8, 16), out[0].StartDate)
	assert.Equal(t, day(2025, 9, 15), out[0].EndDate)
	assert.Equal(t, 2, out[0].TransactionCount)
	assert.True(t, out[0].TotalSpend.Equal(decimal.NewFromFloat(75)))

	assert.Equal(t, day(2025, 7, 16), out[1].StartDate)
	assert.Equal(t, day(2025, 8, 15), out[1].EndDate)
	assert.True(t, out[1].TotalSpend.Equal(decimal.NewFromFloat(170.5)))
}

func TestBuildFromTransactions_EmptyInput(t *testing.T) {
	assert.Nil(t, BuildFromTransactions(1, nil, nil))
}
