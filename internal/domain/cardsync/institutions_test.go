package cardsync

import (
	"testing"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name            string
		institutionName string
		accountName     string
		wantPolicy      string
		wantRestricted  bool
	}{
		{
			name:            "capital one by institution name",
			institutionName: "Capital One",
			wantPolicy:      "capital-one",
			wantRestricted:  true,
		},
		{
			name:            "capital one by product name only",
			institutionName: "",
			accountName:     "Quicksilver Rewards",
			wantPolicy:      "capital-one",
			wantRestricted:  true,
		},
		{
			name:            "apple card via issuing bank",
			institutionName: "Goldman Sachs Bank USA",
			wantPolicy:      "apple-card",
			wantRestricted:  true,
		},
		{
			name:            "amex standard history",
			institutionName: "American Express",
			wantPolicy:      "amex",
		},
		{
			name:            "case insensitive match",
			institutionName: "CHASE BANK",
			wantPolicy:      "chase",
		},
		{
			name:            "synchrony store card",
			institutionName: "Synchrony Bank",
			accountName:     "Amazon Store Card",
			wantPolicy:      "synchrony",
			wantRestricted:  true,
		},
		{
			name:            "unknown institution falls back",
			institutionName: "First Credit Union of Nowhere",
			wantPolicy:      "default",
		},
		{
			name:       "empty names fall back",
			wantPolicy: "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.institutionName, tt.accountName)
			if got.Name != tt.wantPolicy {
				t.Errorf("expected policy %q, got %q", tt.wantPolicy, got.Name)
			}
			if got.RestrictedHistory != tt.wantRestricted {
				t.Errorf("expected restricted=%v, got %v", tt.wantRestricted, got.RestrictedHistory)
			}
			if got.MaxLookbackDays <= 0 || got.ChunkDays <= 0 {
				t.Errorf("policy %q has unusable window fields: %+v", got.Name, got)
			}
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	c := NewClassifierWithPolicies([]InstitutionPolicy{
		{Name: "specific", Tokens: []string{"acme rewards"}, MaxLookbackDays: 90, ChunkDays: 90, RestrictedHistory: true},
		{Name: "broad", Tokens: []string{"acme"}, MaxLookbackDays: 730, ChunkDays: 75},
	}, defaultPolicy)

	got := c.Classify("Acme Bank", "Acme Rewards Card")
	if got.Name != "specific" {
		t.Errorf("expected first matching entry to win, got %q", got.Name)
	}
}

func TestClassifyRestrictedPoliciesSingleChunk(t *testing.T) {
	for _, p := range institutionPolicies {
		if p.RestrictedHistory && p.ChunkDays != p.MaxLookbackDays {
			t.Errorf("restricted policy %q must fetch in one chunk: chunk=%d lookback=%d",
				p.Name, p.ChunkDays, p.MaxLookbackDays)
		}
	}
}
