package aggregator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexValue is a numeric field as delivered by the aggregator: a JSON number,
// a numeric string, a sentinel ("N/A", "Unknown"), or null, depending on the
// institution. Absent and sentinel values are indistinguishable from the
// caller's perspective: Float reports ok=false for both.
type FlexValue struct {
	value float64
	valid bool
}

// NewFlexValue builds a valid FlexValue, mainly for tests and fixtures.
func NewFlexValue(v float64) FlexValue {
	return FlexValue{value: v, valid: true}
}

func (v *FlexValue) UnmarshalJSON(data []byte) error {
	v.valid = false

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if math.IsNaN(num) || math.IsInf(num, 0) {
			return nil
		}
		v.value = num
		v.valid = true
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("value is neither number nor string: %s", string(data))
	}

	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "n/a", "na", "unknown", "null", "none":
		return nil
	}

	num, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
		// Unparseable string values are treated as absent, not as errors;
		// a single bad field must not fail the whole response decode.
		return nil
	}

	v.value = num
	v.valid = true
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}

// Float returns the numeric value and whether one is present and finite.
func (v FlexValue) Float() (float64, bool) {
	if !v.valid {
		return 0, false
	}
	return v.value, true
}

// Balances is the balance sub-object shared by the accounts, balances, and
// liabilities endpoints.
type Balances struct {
	Available FlexValue `json:"available"`
	Current   FlexValue `json:"current"`
	Limit     FlexValue `json:"limit"`
}

// Account represents one account as returned by the aggregator.
type Account struct {
	AccountID       string   `json:"account_id"`
	Name            string   `json:"name"`
	OfficialName    *string  `json:"official_name"`
	Mask            *string  `json:"mask"`
	Type            string   `json:"type"`
	Subtype         string   `json:"subtype"`
	Balances        Balances `json:"balances"`
	OriginationDate string   `json:"origination_date"`
}

// IsCreditCard reports whether the account is a credit card subtype.
func (a *Account) IsCreditCard() bool {
	return strings.EqualFold(strings.TrimSpace(a.Subtype), "credit card")
}

// GetOriginationDate parses the account-level origination date if present.
func (a *Account) GetOriginationDate() (*time.Time, error) {
	return parseFlexDate(a.OriginationDate)
}

// APR is one APR record attached to a credit liability.
type APR struct {
	APRType             string    `json:"apr_type"`
	Percentage          FlexValue `json:"apr_percentage"`
	BalanceSubjectToAPR FlexValue `json:"balance_subject_to_apr"`
}

// CreditLiability carries the credit-card liability detail for one account.
// Limit data shows up under different field names per institution; all known
// variants are mapped here and the extraction cascade decides precedence.
type CreditLiability struct {
	AccountID string `json:"account_id"`
	APRs      []APR  `json:"aprs"`

	Limit           FlexValue `json:"limit"`
	CreditLimit     FlexValue `json:"credit_limit"`
	TotalCreditLine FlexValue `json:"total_credit_line"`
	CardLimit       FlexValue `json:"card_limit"`
	Balances        *Balances `json:"balances"`

	LastStatementBalance   FlexValue `json:"last_statement_balance"`
	LastStatementIssueDate string    `json:"last_statement_issue_date"`
	MinimumPaymentAmount   FlexValue `json:"minimum_payment_amount"`
	NextPaymentDueDate     string    `json:"next_payment_due_date"`
	OriginationDate        string    `json:"origination_date"`
	IsOverdue              *bool     `json:"is_overdue"`
}

// GetLastStatementIssueDate parses the statement issue date if present.
func (l *CreditLiability) GetLastStatementIssueDate() (*time.Time, error) {
	return parseFlexDate(l.LastStatementIssueDate)
}

// GetNextPaymentDueDate parses the next payment due date if present.
func (l *CreditLiability) GetNextPaymentDueDate() (*time.Time, error) {
	return parseFlexDate(l.NextPaymentDueDate)
}

// GetOriginationDate parses the liability-level origination date if present.
func (l *CreditLiability) GetOriginationDate() (*time.Time, error) {
	return parseFlexDate(l.OriginationDate)
}

// Transaction represents one transaction as returned by the aggregator.
// Amounts follow the aggregator's sign convention: positive is spend,
// negative is a payment or credit.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Amount        FlexValue `json:"amount"`
	DateString    string    `json:"date"`
	Name          string    `json:"name"`
	MerchantName  *string   `json:"merchant_name"`
	Category      []string  `json:"category"`
	Pending       bool      `json:"pending"`
}

// GetDate parses the transaction date.
func (t *Transaction) GetDate() (*time.Time, error) {
	return parseFlexDate(t.DateString)
}

// parseFlexDate handles the date formats observed across institutions.
func parseFlexDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("failed to parse date %q", s)
}

// ItemInfo identifies the item (institution connection) a response belongs to.
type ItemInfo struct {
	ItemID          string `json:"item_id"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
}

// ExchangeTokenResponse is the result of exchanging a public token.
type ExchangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// Institution is the institution detail for an item.
type Institution struct {
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
}

// AccountsResponse is returned by the accounts endpoint.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
	Item     ItemInfo  `json:"item"`
}

// BalancesResponse is returned by the balances endpoint.
type BalancesResponse struct {
	Accounts []Account `json:"accounts"`
	Item     ItemInfo  `json:"item"`
}

// LiabilitiesResponse is returned by the liabilities endpoint.
type LiabilitiesResponse struct {
	Accounts    []Account `json:"accounts"`
	Liabilities struct {
		Credit []CreditLiability `json:"credit"`
	} `json:"liabilities"`
	Item ItemInfo `json:"item"`
}

// TransactionsResponse is one page of the transactions endpoint.
type TransactionsResponse struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	Item              ItemInfo      `json:"item"`
}

// LinkTokenResponse is returned when creating a link or update-link token.
type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
}
