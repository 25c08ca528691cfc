package cardsync

import (
	"log"
	"math"
	"time"

	"cartera/internal/domain/card"
	"cartera/internal/infrastructure/aggregator"
)

// Ordered APR types for limit derivation: purchase APRs most often carry the
// full credit line as balance-subject-to-APR.
var aprTypePriority = []string{"purchase", "balance_transfer", "cash_advance", "promotional"}

const (
	// maxPreservedOpenDateAge bounds how old a stored open date can be and
	// still be preserved without re-estimation.
	maxPreservedOpenDateAge = 2 * 365 * 24 * time.Hour
	// transactionOpenDateMargin is subtracted from the earliest known
	// transaction when estimating an open date from activity.
	transactionOpenDateMargin = 21 * 24 * time.Hour
	// defaultOpenDateLookback applies when nothing else is known.
	defaultOpenDateLookback = 365 * 24 * time.Hour
)

// ExtractionInput bundles every source the cascades may consult for one
// account. Any field may be nil; strategies skip what is absent.
type ExtractionInput struct {
	Policy InstitutionPolicy

	// Account is the account record from the accounts endpoint.
	Account *aggregator.Account
	// Liability is the credit liability detail, when the institution
	// provides one.
	Liability *aggregator.CreditLiability
	// BalanceAccount is the same account as seen by the balances endpoint,
	// which some institutions populate differently.
	BalanceAccount *aggregator.Account

	// Existing is the stored card from a previous sync, if any.
	Existing *card.Card
	// EarliestTransaction is the oldest stored transaction date for the card.
	EarliestTransaction *time.Time

	Now time.Time
}

// validLimit accepts only positive, finite values. Sentinels never get here:
// FlexValue already reports them as absent.
func validLimit(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func flexLimit(v aggregator.FlexValue) *float64 {
	if f, ok := v.Float(); ok && validLimit(f) {
		return &f
	}
	return nil
}

type limitStrategy struct {
	name string
	fn   func(in *ExtractionInput) *float64
}

// limitStrategies is the credit-limit cascade, in priority order. The runner
// takes the first strategy yielding a positive finite value.
var limitStrategies = []limitStrategy{
	{"liability_limit", func(in *ExtractionInput) *float64 {
		if in.Liability == nil {
			return nil
		}
		if v := flexLimit(in.Liability.Limit); v != nil {
			return v
		}
		return flexLimit(in.Liability.CreditLimit)
	}},
	{"apr_balance_subject", func(in *ExtractionInput) *float64 {
		if in.Liability == nil {
			return nil
		}
		for _, wanted := range aprTypePriority {
			for i := range in.Liability.APRs {
				if in.Liability.APRs[i].APRType != wanted {
					continue
				}
				if v := flexLimit(in.Liability.APRs[i].BalanceSubjectToAPR); v != nil {
					return v
				}
			}
		}
		// Any APR with a positive subject balance beats nothing.
		for i := range in.Liability.APRs {
			if v := flexLimit(in.Liability.APRs[i].BalanceSubjectToAPR); v != nil {
				return v
			}
		}
		return nil
	}},
	{"liability_balances_limit", func(in *ExtractionInput) *float64 {
		if in.Liability == nil || in.Liability.Balances == nil {
			return nil
		}
		return flexLimit(in.Liability.Balances.Limit)
	}},
	{"liability_alternate_fields", func(in *ExtractionInput) *float64 {
		if in.Liability == nil {
			return nil
		}
		if v := flexLimit(in.Liability.TotalCreditLine); v != nil {
			return v
		}
		return flexLimit(in.Liability.CardLimit)
	}},
	{"balance_endpoint_limit", func(in *ExtractionInput) *float64 {
		// Response shapes in endpoint order: balances, accounts, liabilities.
		if in.BalanceAccount != nil {
			if v := flexLimit(in.BalanceAccount.Balances.Limit); v != nil {
				return v
			}
		}
		if in.Account != nil {
			if v := flexLimit(in.Account.Balances.Limit); v != nil {
				return v
			}
		}
		if in.Liability != nil && in.Liability.Balances != nil {
			return flexLimit(in.Liability.Balances.Limit)
		}
		return nil
	}},
	{"available_plus_current", func(in *ExtractionInput) *float64 {
		sources := []*aggregator.Balances{
			balancesOf(in.BalanceAccount),
			balancesOf(in.Account),
			liabilityBalances(in.Liability),
		}
		for _, b := range sources {
			if b == nil {
				continue
			}
			avail, ok := b.Available.Float()
			if !ok || avail <= 0 {
				continue
			}
			current, _ := b.Current.Float()
			derived := avail + math.Abs(current)
			if validLimit(derived) {
				return &derived
			}
		}
		return nil
	}},
}

func balancesOf(a *aggregator.Account) *aggregator.Balances {
	if a == nil {
		return nil
	}
	return &a.Balances
}

func liabilityBalances(l *aggregator.CreditLiability) *aggregator.Balances {
	if l == nil {
		return nil
	}
	return l.Balances
}

// LimitExtraction is the cascade outcome for a credit limit.
type LimitExtraction struct {
	// Limit is nil when no strategy produced a valid value, never zero,
	// never a placeholder.
	Limit *float64
	// Source names the winning strategy, or "none".
	Source string
	// ClearManualOverride is set when valid aggregator data arrived and any
	// user-entered manual limit must yield to it.
	ClearManualOverride bool
}

// ExtractCreditLimit runs the credit-limit cascade for one account.
func ExtractCreditLimit(in *ExtractionInput) LimitExtraction {
	for _, s := range limitStrategies {
		if v := s.fn(in); v != nil {
			log.Printf("Credit limit for account %s: %.2f via %s", accountID(in), *v, s.name)
			return LimitExtraction{Limit: v, Source: s.name, ClearManualOverride: true}
		}
	}

	if in.Existing != nil && in.Existing.ManualLimit != nil {
		log.Printf("Credit limit for account %s: no valid source, preserving manual override %.2f",
			accountID(in), *in.Existing.ManualLimit)
		return LimitExtraction{Limit: in.Existing.ManualLimit, Source: "manual_override"}
	}

	log.Printf("Credit limit for account %s: no valid source, storing null", accountID(in))
	return LimitExtraction{Source: "none"}
}

type openDateStrategy struct {
	name string
	fn   func(in *ExtractionInput) *time.Time
}

// openDateStrategies is the open/origination date cascade, in priority order.
var openDateStrategies = []openDateStrategy{
	{"liability_origination", func(in *ExtractionInput) *time.Time {
		if in.Liability == nil {
			return nil
		}
		d, err := in.Liability.GetOriginationDate()
		if err != nil || d == nil || d.After(in.Now) {
			return nil
		}
		return d
	}},
	{"account_origination", func(in *ExtractionInput) *time.Time {
		if in.Account == nil {
			return nil
		}
		d, err := in.Account.GetOriginationDate()
		if err != nil || d == nil || d.After(in.Now) {
			return nil
		}
		return d
	}},
	{"statement_offset", func(in *ExtractionInput) *time.Time {
		if in.Liability == nil {
			return nil
		}
		issued, err := in.Liability.GetLastStatementIssueDate()
		if err != nil || issued == nil {
			return nil
		}
		offset := in.Policy.OriginationOffsetMonths
		if offset <= 0 {
			offset = standardOriginOffset
		}
		estimated := issued.AddDate(0, -offset, 0)
		if estimated.After(in.Now) {
			return nil
		}
		return &estimated
	}},
	{"existing_plausible", func(in *ExtractionInput) *time.Time {
		if in.Existing == nil || in.Existing.OpenDate == nil {
			return nil
		}
		d := *in.Existing.OpenDate
		if d.After(in.Now) || in.Now.Sub(d) > maxPreservedOpenDateAge {
			// Outside the plausibility window: discard and re-estimate.
			return nil
		}
		return &d
	}},
	{"earliest_transaction", func(in *ExtractionInput) *time.Time {
		if in.EarliestTransaction == nil {
			return nil
		}
		estimated := in.EarliestTransaction.Add(-transactionOpenDateMargin)
		return &estimated
	}},
	{"default_lookback", func(in *ExtractionInput) *time.Time {
		estimated := in.Now.Add(-defaultOpenDateLookback)
		return &estimated
	}},
}

// OpenDateExtraction is the cascade outcome for an open date.
type OpenDateExtraction struct {
	OpenDate time.Time
	Source   string
}

// ExtractOpenDate runs the open-date cascade. It always produces a value:
// the final default-lookback strategy cannot miss.
func ExtractOpenDate(in *ExtractionInput) OpenDateExtraction {
	for _, s := range openDateStrategies {
		if d := s.fn(in); d != nil {
			log.Printf("Open date for account %s: %s via %s", accountID(in), d.Format("2006-01-02"), s.name)
			return OpenDateExtraction{OpenDate: *d, Source: s.name}
		}
	}
	// Unreachable: default_lookback always yields.
	return OpenDateExtraction{OpenDate: in.Now.Add(-defaultOpenDateLookback), Source: "default_lookback"}
}

func accountID(in *ExtractionInput) string {
	if in.Account != nil {
		return in.Account.AccountID
	}
	if in.Liability != nil {
		return in.Liability.AccountID
	}
	return "unknown"
}
