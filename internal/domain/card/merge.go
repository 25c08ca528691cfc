package card

import (
	"sort"
)

// Merge maps a duplicate card onto its canonical survivor. The invariant is
// at most one card per external account id; duplicates can appear when two
// syncs of the same connection race each other.
type Merge struct {
	CanonicalID  int64
	DuplicateIDs []int64
}

// PlanMerges detects duplicate cards (same external account id) and picks the
// oldest-created record as canonical for each group. It is a pure first pass:
// callers apply the plan afterwards by reassigning child rows to CanonicalID
// and removing the duplicates, so no write depends on iteration order.
func PlanMerges(cards []*Card) []Merge {
	byExternalID := make(map[string][]*Card)
	for _, c := range cards {
		byExternalID[c.ExternalAccountID] = append(byExternalID[c.ExternalAccountID], c)
	}

	var merges []Merge
	for _, group := range byExternalID {
		if len(group) < 2 {
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID < group[j].ID
			}
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		merge := Merge{CanonicalID: group[0].ID}
		for _, dup := range group[1:] {
			merge.DuplicateIDs = append(merge.DuplicateIDs, dup.ID)
		}
		merges = append(merges, merge)
	}

	sort.Slice(merges, func(i, j int) bool {
		return merges[i].CanonicalID < merges[j].CanonicalID
	})

	return merges
}

// CanonicalIDMap flattens a merge plan into duplicate-id -> canonical-id, so
// downstream writes can route through one mapping.
func CanonicalIDMap(merges []Merge) map[int64]int64 {
	mapping := make(map[int64]int64)
	for _, m := range merges {
		for _, dup := range m.DuplicateIDs {
			mapping[dup] = m.CanonicalID
		}
	}
	return mapping
}
