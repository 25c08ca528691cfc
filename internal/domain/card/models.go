// Package card models a credit-card account under a connection.
package card

import (
	"time"
)

// Card represents one credit-card account. CreditLimit is nullable on
// purpose: absence means the aggregator never produced a valid limit, which
// is different from a limit of zero. ManualLimit carries a user-entered
// override that survives syncs only while the extraction cascade keeps
// failing; valid aggregator data clears it.
type Card struct {
	ID                   int64      `json:"id"`
	ConnectionID         int64      `json:"connectionId"`
	ExternalAccountID    string     `json:"externalAccountId"`
	Name                 string     `json:"name"`
	OfficialName         *string    `json:"officialName"`
	Mask                 *string    `json:"mask"`
	CurrentBalance       *float64   `json:"currentBalance"`
	AvailableBalance     *float64   `json:"availableBalance"`
	CreditLimit          *float64   `json:"creditLimit"`
	ManualLimit          *float64   `json:"manualLimit"`
	LastStatementBalance *float64   `json:"lastStatementBalance"`
	LastStatementDate    *time.Time `json:"lastStatementDate"`
	NextPaymentDueDate   *time.Time `json:"nextPaymentDueDate"`
	MinimumPayment       *float64   `json:"minimumPayment"`
	OpenDate             *time.Time `json:"openDate"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// UpsertParams holds the fields written on every sync, keyed on
// ExternalAccountID.
type UpsertParams struct {
	ConnectionID         int64
	ExternalAccountID    string
	Name                 string
	OfficialName         *string
	Mask                 *string
	CurrentBalance       *float64
	AvailableBalance     *float64
	CreditLimit          *float64
	ClearManualLimit     bool
	LastStatementBalance *float64
	LastStatementDate    *time.Time
	NextPaymentDueDate   *time.Time
	MinimumPayment       *float64
	OpenDate             *time.Time
}

// APR is a snapshot of one APR record for a card. APR snapshots are fully
// replaced on each sync rather than accumulated.
type APR struct {
	ID                  int64    `json:"id"`
	CardID              int64    `json:"cardId"`
	APRType             string   `json:"aprType"`
	Percentage          float64  `json:"percentage"`
	BalanceSubjectToAPR *float64 `json:"balanceSubjectToApr"`
}
