package pipeline

import (
	"sort"
	"strings"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/normalize"
)

// Deduplicator merges records describing the same opportunity reported by
// multiple sources. Identity is normalized title plus issuing body; with a
// similarity threshold below 1.0, titles from the same issuer whose token
// sets overlap at least that much also merge.
type Deduplicator struct {
	threshold float64
}

// NewDeduplicator builds a deduplicator. threshold 1.0 means exact key
// matches only; values in (0,1) enable fuzzy title matching.
func NewDeduplicator(threshold float64) *Deduplicator {
	if threshold <= 0 || threshold > 1 {
		threshold = 1.0
	}
	return &Deduplicator{threshold: threshold}
}

func dedupeKey(rec models.CanonicalRecord) string {
	return normalize.TitleKey(rec.Title) + "|" + normalize.TitleKey(rec.IssuingBody)
}

// Merge collapses duplicates. Within a group the record with the latest
// LastVerified wins; empty fields on the winner are backfilled from the
// losers, and conflicting values are left alone.
func (d *Deduplicator) Merge(records []models.CanonicalRecord) []models.CanonicalRecord {
	groups := make(map[string][]models.CanonicalRecord)
	var order []string
	for _, rec := range records {
		key := dedupeKey(rec)
		if d.threshold < 1.0 {
			if match := d.fuzzyMatch(groups, key); match != "" {
				key = match
			}
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	out := make([]models.CanonicalRecord, 0, len(order))
	for _, key := range order {
		out = append(out, mergeGroup(groups[key]))
	}
	return out
}

// fuzzyMatch finds an existing group key whose title tokens overlap the
// candidate's at or above the threshold, with the same issuer.
func (d *Deduplicator) fuzzyMatch(groups map[string][]models.CanonicalRecord, key string) string {
	title, issuer, ok := strings.Cut(key, "|")
	if !ok {
		return ""
	}
	best := ""
	bestScore := d.threshold
	for existing := range groups {
		exTitle, exIssuer, ok := strings.Cut(existing, "|")
		if !ok || exIssuer != issuer {
			continue
		}
		if score := jaccard(title, exTitle); score >= bestScore {
			best = existing
			bestScore = score
		}
	}
	return best
}

func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

func mergeGroup(group []models.CanonicalRecord) models.CanonicalRecord {
	if len(group) == 1 {
		return group[0]
	}
	// Latest verification wins; ties break on source name for determinism.
	sort.SliceStable(group, func(i, j int) bool {
		if !group[i].LastVerified.Equal(group[j].LastVerified) {
			return group[i].LastVerified.After(group[j].LastVerified)
		}
		return group[i].SourceName < group[j].SourceName
	})

	winner := group[0]
	for _, other := range group[1:] {
		backfill(&winner, other)
	}
	return winner
}

// backfill copies fields the winner is missing from a losing duplicate.
// Populated winner fields are never overwritten.
func backfill(winner *models.CanonicalRecord, other models.CanonicalRecord) {
	if winner.Description == "" {
		winner.Description = other.Description
	}
	if winner.Program == "" {
		winner.Program = other.Program
	}
	if winner.ProgramType == "" {
		winner.ProgramType = other.ProgramType
	}
	if winner.Deadline == nil && other.Deadline != nil {
		winner.Deadline = other.Deadline
		if winner.DeadlineRaw == "" {
			winner.DeadlineRaw = other.DeadlineRaw
		}
	}
	if winner.Amount == nil && other.Amount != nil {
		winner.Amount = other.Amount
		if winner.AmountRaw == "" {
			winner.AmountRaw = other.AmountRaw
		}
	}
	if winner.ExternalURL == "" {
		winner.ExternalURL = other.ExternalURL
	}
	winner.Eligibility = normalize.MergeUniqueFold(winner.Eligibility, other.Eligibility)
	winner.Tags = normalize.MergeUniqueFold(winner.Tags, other.Tags)
}
