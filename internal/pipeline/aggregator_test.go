package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/sources"
)

type stubAdapter struct {
	name    string
	records []models.CanonicalRecord
	err     error
	delay   time.Duration
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context, q sources.Query) ([]models.CanonicalRecord, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func stubRecord(title, source string) models.CanonicalRecord {
	return models.CanonicalRecord{
		Title:        title,
		IssuingBody:  "Agency",
		SourceName:   source,
		SourceID:     title,
		LastVerified: time.Now().UTC(),
	}
}

func TestAggregatorPartialFailure(t *testing.T) {
	agg := NewAggregator([]sources.Adapter{
		&stubAdapter{name: "good", records: []models.CanonicalRecord{stubRecord("Grant A", "good")}},
		&stubAdapter{name: "bad", err: &sources.SourceError{Source: "bad", Reason: "boom", Retryable: true}},
	}, nil, time.Second)

	res, err := agg.Fetch(context.Background(), sources.Query{})
	if err != nil {
		t.Fatalf("partial failure must not error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(res.Outcomes))
	}

	byName := map[string]models.PerSourceOutcome{}
	for _, o := range res.Outcomes {
		byName[o.Source] = o
	}
	if !byName["good"].OK || byName["good"].Records != 1 {
		t.Errorf("good outcome = %+v", byName["good"])
	}
	if byName["bad"].OK || byName["bad"].Error == "" {
		t.Errorf("bad outcome = %+v", byName["bad"])
	}
}

func TestAggregatorAllFail(t *testing.T) {
	agg := NewAggregator([]sources.Adapter{
		&stubAdapter{name: "a", err: errors.New("down")},
		&stubAdapter{name: "b", err: errors.New("also down")},
	}, nil, time.Second)

	res, err := agg.Fetch(context.Background(), sources.Query{})
	if !errors.Is(err, ErrAllSourcesFailed) {
		t.Fatalf("err = %v, want ErrAllSourcesFailed", err)
	}
	if res == nil || len(res.Outcomes) != 2 {
		t.Fatal("outcomes must still be reported when everything fails")
	}
}

func TestAggregatorWaitsForAllSources(t *testing.T) {
	fast := &stubAdapter{name: "fast", records: []models.CanonicalRecord{stubRecord("Fast Grant", "fast")}}
	slow := &stubAdapter{
		name:    "slow",
		delay:   50 * time.Millisecond,
		records: []models.CanonicalRecord{stubRecord("Slow Grant", "slow")},
	}

	agg := NewAggregator([]sources.Adapter{fast, slow}, nil, time.Second)
	res, err := agg.Fetch(context.Background(), sources.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want both sources merged", len(res.Records))
	}
}

func TestAggregatorPerSourceTimeout(t *testing.T) {
	hung := &stubAdapter{name: "hung", delay: 5 * time.Second}
	good := &stubAdapter{name: "good", records: []models.CanonicalRecord{stubRecord("Grant", "good")}}

	agg := NewAggregator([]sources.Adapter{hung, good}, nil, 30*time.Millisecond)
	res, err := agg.Fetch(context.Background(), sources.Query{})
	if err != nil {
		t.Fatalf("timeout of one source must not fail the pass: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(res.Records))
	}
	byName := map[string]models.PerSourceOutcome{}
	for _, o := range res.Outcomes {
		byName[o.Source] = o
	}
	if byName["hung"].OK {
		t.Error("hung source should be reported as failed")
	}
}

func TestAggregatorCrossSourceDedup(t *testing.T) {
	now := time.Now().UTC()
	a := stubRecord("Shared Opportunity", "s1")
	a.LastVerified = now.Add(-time.Hour)
	b := stubRecord("Shared Opportunity", "s2")
	b.LastVerified = now

	agg := NewAggregator([]sources.Adapter{
		&stubAdapter{name: "s1", records: []models.CanonicalRecord{a}},
		&stubAdapter{name: "s2", records: []models.CanonicalRecord{b}},
	}, NewDeduplicator(1.0), time.Second)

	res, err := agg.Fetch(context.Background(), sources.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("got %d records, want cross-source duplicate merged", len(res.Records))
	}
	if res.Records[0].SourceName != "s2" {
		t.Errorf("winner = %q, want latest verified", res.Records[0].SourceName)
	}
}
