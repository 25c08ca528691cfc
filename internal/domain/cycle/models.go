// Package cycle models credit-card billing cycles and reconciles cycle
// records produced by different fetch scopes into one canonical set.
package cycle

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses for a billing cycle.
const (
	PaymentStatusCurrent     = "current"
	PaymentStatusDue         = "due"
	PaymentStatusPaid        = "paid"
	PaymentStatusOutstanding = "outstanding"
)

// IsValidPaymentStatus reports whether s is a known payment status.
func IsValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusCurrent, PaymentStatusDue, PaymentStatusPaid, PaymentStatusOutstanding:
		return true
	}
	return false
}

// BillingCycle represents one statement period for a card. StatementBalance,
// MinimumPayment, and DueDate are present only once the cycle has closed and
// statement data reached the aggregator. Money fields use decimals: cycle
// totals are sums over many float-sourced amounts and must compare exactly
// during reconciliation.
type BillingCycle struct {
	ID               int64            `json:"id"`
	CardID           int64            `json:"cardId"`
	StartDate        time.Time        `json:"startDate"`
	EndDate          time.Time        `json:"endDate"`
	TotalSpend       decimal.Decimal  `json:"totalSpend"`
	TransactionCount int              `json:"transactionCount"`
	StatementBalance *decimal.Decimal `json:"statementBalance"`
	MinimumPayment   *decimal.Decimal `json:"minimumPayment"`
	DueDate          *time.Time       `json:"dueDate"`
	PaymentStatus    string           `json:"paymentStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// HasClosingData reports whether the record carries any cycle-closing
// statement fields.
func (c *BillingCycle) HasClosingData() bool {
	return c.StatementBalance != nil || c.MinimumPayment != nil || c.DueDate != nil
}

// Key identifies a logical cycle at day granularity regardless of which fetch
// scope produced the record.
type Key struct {
	CardID int64
	Start  string // YYYY-MM-DD
	End    string // YYYY-MM-DD
}

// KeyOf computes the dedupe key for a cycle record.
func KeyOf(c *BillingCycle) Key {
	return Key{
		CardID: c.CardID,
		Start:  c.StartDate.Format("2006-01-02"),
		End:    c.EndDate.Format("2006-01-02"),
	}
}
