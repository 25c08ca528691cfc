package cardsync

import (
	"strings"
)

// InstitutionPolicy is the per-institution sync policy. One declarative table
// replaces ad hoc name checks so the fetcher and the extraction cascade can
// never disagree about an institution's class.
type InstitutionPolicy struct {
	// Name labels the policy for logging.
	Name string
	// Tokens are matched case-insensitively as substrings against the
	// institution name and the account name.
	Tokens []string
	// RestrictedHistory marks institutions whose aggregator integration caps
	// transaction history to a short fixed window regardless of the
	// requested range.
	RestrictedHistory bool
	// MaxLookbackDays bounds how far back transactions can be requested.
	MaxLookbackDays int
	// ChunkDays sizes date-bounded fetch chunks. Ignored for
	// restricted-history institutions, which always fetch in one chunk.
	ChunkDays int
	// OriginationOffsetMonths is subtracted from the first statement issue
	// date when estimating an account open date.
	OriginationOffsetMonths int
}

const (
	restrictedLookbackDays = 90
	standardLookbackDays   = 730
	standardChunkDays      = 75
	standardOriginOffset   = 6
)

// institutionPolicies is ordered: the first matching entry wins.
var institutionPolicies = []InstitutionPolicy{
	{
		Name:                    "capital-one",
		Tokens:                  []string{"capital one", "capitalone", "quicksilver", "venture card", "savor"},
		RestrictedHistory:       true,
		MaxLookbackDays:         restrictedLookbackDays,
		ChunkDays:               restrictedLookbackDays,
		OriginationOffsetMonths: 1,
	},
	{
		Name:                    "apple-card",
		Tokens:                  []string{"apple card", "goldman sachs"},
		RestrictedHistory:       true,
		MaxLookbackDays:         restrictedLookbackDays,
		ChunkDays:               restrictedLookbackDays,
		OriginationOffsetMonths: 1,
	},
	{
		Name:                    "amex",
		Tokens:                  []string{"american express", "amex"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               90,
		OriginationOffsetMonths: 12,
	},
	{
		Name:                    "chase",
		Tokens:                  []string{"chase", "jpmorgan"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               standardChunkDays,
		OriginationOffsetMonths: standardOriginOffset,
	},
	{
		Name:                    "discover",
		Tokens:                  []string{"discover"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               standardChunkDays,
		OriginationOffsetMonths: standardOriginOffset,
	},
	{
		Name:                    "synchrony",
		Tokens:                  []string{"synchrony"},
		RestrictedHistory:       true,
		MaxLookbackDays:         restrictedLookbackDays,
		ChunkDays:               restrictedLookbackDays,
		OriginationOffsetMonths: 3,
	},
	{
		Name:                    "bofa",
		Tokens:                  []string{"bank of america", "bofa"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               standardChunkDays,
		OriginationOffsetMonths: standardOriginOffset,
	},
	{
		Name:                    "citi",
		Tokens:                  []string{"citibank", "citi "},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               60,
		OriginationOffsetMonths: standardOriginOffset,
	},
	{
		Name:                    "wells-fargo",
		Tokens:                  []string{"wells fargo"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               standardChunkDays,
		OriginationOffsetMonths: standardOriginOffset,
	},
	{
		Name:                    "barclays",
		Tokens:                  []string{"barclays", "barclaycard"},
		MaxLookbackDays:         standardLookbackDays,
		ChunkDays:               standardChunkDays,
		OriginationOffsetMonths: standardOriginOffset,
	},
}

// defaultPolicy applies when no table entry matches: a standard 12-month
// lookback, since unknown integrations more often under-deliver than not.
var defaultPolicy = InstitutionPolicy{
	Name:                    "default",
	MaxLookbackDays:         365,
	ChunkDays:               standardChunkDays,
	OriginationOffsetMonths: standardOriginOffset,
}

// Classifier resolves institution policies from institution and account
// names.
type Classifier struct {
	policies []InstitutionPolicy
	fallback InstitutionPolicy
}

// NewClassifier creates a classifier over the built-in policy table.
func NewClassifier() *Classifier {
	return &Classifier{policies: institutionPolicies, fallback: defaultPolicy}
}

// NewClassifierWithPolicies creates a classifier over a custom table, mainly
// for tests.
func NewClassifierWithPolicies(policies []InstitutionPolicy, fallback InstitutionPolicy) *Classifier {
	return &Classifier{policies: policies, fallback: fallback}
}

// Classify returns the policy for an institution/account name pair. Matching
// is case-insensitive substring over both names; the first table entry with a
// matching token wins.
func (c *Classifier) Classify(institutionName, accountName string) InstitutionPolicy {
	haystack := strings.ToLower(institutionName + " " + accountName)

	for _, p := range c.policies {
		for _, token := range p.Tokens {
			if strings.Contains(haystack, token) {
				return p
			}
		}
	}

	return c.fallback
}
