// Package transaction models stored card transactions. Storage follows the
// accumulation strategy: records are only ever inserted or updated, never
// deleted by a sync, so history outlives any single aggregator response
// window.
package transaction

import (
	"time"
)

// Transaction represents one stored transaction, keyed on the aggregator's
// transaction id. CardID is nil when the owning account could not be resolved
// at sync time; the transaction is kept anyway and re-linked later.
// Amount sign convention: positive is spend, negative is a payment or credit.
type Transaction struct {
	ID           string     `json:"id"`
	ConnectionID int64      `json:"connectionId"`
	CardID       *int64     `json:"cardId"`
	Amount       float64    `json:"amount"`
	Date         time.Time  `json:"date"`
	Name         string     `json:"name"`
	MerchantName *string    `json:"merchantName"`
	Category     *string    `json:"category"`
	Subcategory  *string    `json:"subcategory"`
	Pending      bool       `json:"pending"`
	NeedsReview  bool       `json:"needsReview"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// UpsertParams holds the mutable fields written on every sync.
type UpsertParams struct {
	ID           string
	ConnectionID int64
	CardID       *int64
	Amount       float64
	Date         time.Time
	Name         string
	MerchantName *string
	Category     *string
	Subcategory  *string
	Pending      bool
	NeedsReview  bool
}
