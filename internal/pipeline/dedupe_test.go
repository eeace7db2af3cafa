package pipeline

import (
	"testing"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
)

func rec(title, issuer, source string, verified time.Time) models.CanonicalRecord {
	return models.CanonicalRecord{
		Title:        title,
		IssuingBody:  issuer,
		SourceName:   source,
		SourceID:     source + "-" + title,
		LastVerified: verified,
	}
}

func TestMergeExactDuplicates(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	a := rec("Smart Cities Grant", "European Commission", "eu-portal", older)
	a.Description = "old description"
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	a.Deadline = &deadline
	a.Eligibility = []string{"Universities"}

	b := rec("Smart  Cities Grant!", "european commission", "grants-gov", newer)
	b.Eligibility = []string{"SMEs"}

	got := NewDeduplicator(1.0).Merge([]models.CanonicalRecord{a, b})
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}

	winner := got[0]
	if winner.SourceName != "grants-gov" {
		t.Errorf("winner source = %q, want the latest verified", winner.SourceName)
	}
	// Backfilled from the older duplicate.
	if winner.Description != "old description" {
		t.Errorf("description not backfilled: %q", winner.Description)
	}
	if winner.Deadline == nil || !winner.Deadline.Equal(deadline) {
		t.Errorf("deadline not backfilled: %v", winner.Deadline)
	}
	if len(winner.Eligibility) != 2 {
		t.Errorf("eligibility = %v, want union", winner.Eligibility)
	}
}

func TestMergeKeepsDistinctRecords(t *testing.T) {
	now := time.Now().UTC()
	records := []models.CanonicalRecord{
		rec("Quantum Computing Call", "NSF", "grants-gov", now),
		rec("Quantum Computing Call", "European Commission", "eu-portal", now),
		rec("Marine Biology Fund", "NSF", "grants-gov", now),
	}
	got := NewDeduplicator(1.0).Merge(records)
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3 (same title different issuer is not a duplicate)", len(got))
	}
}

func TestMergeDoesNotOverwriteConflicts(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	dOld := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dNew := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	a := rec("Health Data Call", "NIH", "grants-gov", older)
	a.Deadline = &dOld
	b := rec("Health Data Call", "NIH", "eu-portal", newer)
	b.Deadline = &dNew

	got := NewDeduplicator(1.0).Merge([]models.CanonicalRecord{a, b})
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if !got[0].Deadline.Equal(dNew) {
		t.Errorf("winner deadline overwritten: %v, want %v", got[0].Deadline, dNew)
	}
}

func TestMergeFuzzyThreshold(t *testing.T) {
	now := time.Now().UTC()
	records := []models.CanonicalRecord{
		rec("AI for Health Research Programme 2026", "UKRI", "ukri", now),
		rec("AI for Health Research Programme", "UKRI", "grants-gov", now.Add(-time.Hour)),
	}

	// Exact matching keeps them apart.
	if got := NewDeduplicator(1.0).Merge(records); len(got) != 2 {
		t.Fatalf("exact: got %d, want 2", len(got))
	}
	// Fuzzy matching merges them.
	if got := NewDeduplicator(0.8).Merge(records); len(got) != 1 {
		t.Fatalf("fuzzy: got %d, want 1", len(got))
	}
}

func TestMergeDeterministicOrder(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	records := []models.CanonicalRecord{
		rec("B Call", "X", "s1", now),
		rec("A Call", "X", "s1", now),
		rec("B Call", "X", "s2", now),
	}
	first := NewDeduplicator(1.0).Merge(records)
	second := NewDeduplicator(1.0).Merge(records)
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d/%d, want 2", len(first), len(second))
	}
	for i := range first {
		if first[i].Title != second[i].Title || first[i].SourceName != second[i].SourceName {
			t.Errorf("order not deterministic at %d: %v vs %v", i, first[i], second[i])
		}
	}
}
