package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voidcat/grant-discovery/internal/cache"
	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/pipeline"
	"github.com/voidcat/grant-discovery/internal/sources"
)

type stubAdapter struct {
	name    string
	records []models.CanonicalRecord
	err     error
	calls   int
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Fetch(ctx context.Context, q sources.Query) ([]models.CanonicalRecord, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.records, nil
}

func rec(title, issuer, source, sourceID string, amountMax float64, deadlineDays int) models.CanonicalRecord {
	r := models.CanonicalRecord{
		ID:           models.RecordID(source, sourceID),
		Title:        title,
		IssuingBody:  issuer,
		SourceName:   source,
		SourceID:     sourceID,
		LastVerified: time.Now().UTC(),
	}
	if amountMax > 0 {
		r.Amount = &models.AmountRange{Max: amountMax, Currency: "USD"}
	}
	if deadlineDays > 0 {
		d := time.Now().UTC().AddDate(0, 0, deadlineDays)
		r.Deadline = &d
	}
	return r
}

func newTestService(adapters ...sources.Adapter) *Service {
	agg := pipeline.NewAggregator(adapters, pipeline.NewDeduplicator(1.0), 5*time.Second)
	return NewService(cache.New(16, time.Minute), agg, nil)
}

func TestSearchPartialFailureTransparency(t *testing.T) {
	ok1 := &stubAdapter{name: "alpha", records: []models.CanonicalRecord{
		rec("AI Research Grant", "NSF", "alpha", "1", 500000, 20),
	}}
	ok2 := &stubAdapter{name: "beta", records: []models.CanonicalRecord{
		rec("Quantum Computing Call", "DOE", "beta", "2", 250000, 40),
	}}
	broken := &stubAdapter{name: "gamma", err: &sources.SourceError{
		Source: "gamma", Reason: "upstream 503", Retryable: true,
		Err: errors.New("status 503"),
	}}

	svc := newTestService(ok1, ok2, broken)
	resp, err := svc.Search(context.Background(), Request{Text: "research"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(resp.Records))
	}
	if !resp.Provenance.FallbackOccurred {
		t.Error("fallback_occurred should be true with one failed source")
	}
	if !resp.Provenance.Degraded {
		t.Error("degraded should be true with one failed source")
	}
	var failed *models.PerSourceOutcome
	for i := range resp.Provenance.SourceOutcomes {
		if resp.Provenance.SourceOutcomes[i].Source == "gamma" {
			failed = &resp.Provenance.SourceOutcomes[i]
		}
	}
	if failed == nil || failed.OK {
		t.Fatalf("outcome list should include the failed source: %+v", resp.Provenance.SourceOutcomes)
	}
}

func TestSearchAllSourcesFailedIsError(t *testing.T) {
	mk := func(name string) *stubAdapter {
		return &stubAdapter{name: name, err: &sources.SourceError{
			Source: name, Reason: "timeout", Retryable: true, Err: context.DeadlineExceeded,
		}}
	}
	svc := newTestService(mk("a"), mk("b"), mk("c"))

	resp, err := svc.Search(context.Background(), Request{Text: "anything"})
	if err == nil {
		t.Fatalf("all-sources failure must not return an empty success: %+v", resp)
	}
	if !errors.Is(err, pipeline.ErrAllSourcesFailed) {
		t.Errorf("error should wrap ErrAllSourcesFailed, got %v", err)
	}
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	svc := newTestService(&stubAdapter{name: "alpha"})
	resp, err := svc.Search(context.Background(), Request{Text: "no matches here"})
	if err != nil {
		t.Fatalf("healthy sources with no data must succeed: %v", err)
	}
	if resp.TotalMatched != 0 {
		t.Errorf("total = %d, want 0", resp.TotalMatched)
	}
	if resp.Provenance.FallbackOccurred {
		t.Error("no fallback expected when every source succeeded")
	}
}

func TestSearchFilterComposition(t *testing.T) {
	adapter := &stubAdapter{name: "alpha", records: []models.CanonicalRecord{
		rec("Space Propulsion Grant", "NASA", "alpha", "1", 250000, 30),
		rec("Small Satellite Grant", "NASA", "alpha", "2", 50000, 30),
		rec("Fusion Energy Grant", "DOE", "alpha", "3", 500000, 30),
	}}
	svc := newTestService(adapter)

	resp, err := svc.Search(context.Background(), Request{
		Text:    "grant",
		Filters: Filters{Agencies: []string{"NASA"}, AmountMin: 100000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalMatched != 1 {
		t.Fatalf("total_matched = %d, want 1 (filtered count, not raw)", resp.TotalMatched)
	}
	got := resp.Records[0]
	if got.IssuingBody != "NASA" || got.Amount.Max < 100000 {
		t.Errorf("filter leaked: %s / %+v", got.IssuingBody, got.Amount)
	}
}

func TestSearchCacheHitProvenance(t *testing.T) {
	adapter := &stubAdapter{name: "alpha", records: []models.CanonicalRecord{
		rec("Cached Grant", "NSF", "alpha", "1", 0, 0),
	}}
	svc := newTestService(adapter)

	first, err := svc.Search(context.Background(), Request{Text: "cached grant"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Provenance.DataSource != SourceLive {
		t.Errorf("first search data_source = %q, want live", first.Provenance.DataSource)
	}

	second, err := svc.Search(context.Background(), Request{Text: "Grant cached"}) // same keywords, different order
	if err != nil {
		t.Fatal(err)
	}
	if second.Provenance.DataSource != SourceCache {
		t.Errorf("second search data_source = %q, want cache", second.Provenance.DataSource)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter called %d times, want 1", adapter.calls)
	}
}

func TestSearchSortOrders(t *testing.T) {
	adapter := &stubAdapter{name: "alpha", records: []models.CanonicalRecord{
		rec("Alpha Grant", "NSF", "alpha", "1", 100000, 60),
		rec("Beta Grant", "NSF", "alpha", "2", 900000, 10),
		rec("Gamma Grant", "NSF", "alpha", "3", 0, 0), // no amount, no deadline
	}}
	svc := newTestService(adapter)

	byDeadline, err := svc.Search(context.Background(), Request{Text: "grant", Sort: "deadline"})
	if err != nil {
		t.Fatal(err)
	}
	if byDeadline.Records[0].Title != "Beta Grant" {
		t.Errorf("deadline sort: first = %q, want soonest deadline", byDeadline.Records[0].Title)
	}
	if byDeadline.Records[len(byDeadline.Records)-1].Deadline != nil {
		t.Error("deadline sort: records without a deadline belong last")
	}

	byAmount, err := svc.Search(context.Background(), Request{Text: "grant", Sort: "amount_desc"})
	if err != nil {
		t.Fatal(err)
	}
	if byAmount.Records[0].Title != "Beta Grant" {
		t.Errorf("amount sort: first = %q, want largest ceiling", byAmount.Records[0].Title)
	}
}

func TestSearchPagination(t *testing.T) {
	var records []models.CanonicalRecord
	for i := 0; i < 5; i++ {
		records = append(records, rec("Grant "+string(rune('A'+i)), "NSF", "alpha", string(rune('a'+i)), 0, 0))
	}
	svc := newTestService(&stubAdapter{name: "alpha", records: records})

	page1, err := svc.Search(context.Background(), Request{Text: "grant", Page: 1, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Records) != 2 || page1.TotalMatched != 5 {
		t.Fatalf("page1: %d records, total %d", len(page1.Records), page1.TotalMatched)
	}

	page3, err := svc.Search(context.Background(), Request{Text: "grant", Page: 3, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Records) != 1 {
		t.Errorf("page3: %d records, want 1", len(page3.Records))
	}

	beyond, err := svc.Search(context.Background(), Request{Text: "grant", Page: 9, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(beyond.Records) != 0 {
		t.Errorf("out-of-range page should be empty, got %d", len(beyond.Records))
	}
}

func TestGetFallsBackToCachedAggregations(t *testing.T) {
	target := rec("Lookup Grant", "NSF", "alpha", "lookup-1", 0, 0)
	svc := newTestService(&stubAdapter{name: "alpha", records: []models.CanonicalRecord{target}})

	if _, err := svc.Get(context.Background(), target.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cold cache should report not found, got %v", err)
	}

	if _, err := svc.Search(context.Background(), Request{Text: "lookup"}); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Get(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("get after warming cache: %v", err)
	}
	if got.Title != target.Title {
		t.Errorf("title = %q", got.Title)
	}
}

func TestStoreFallbackWhenNotConfigured(t *testing.T) {
	svc := newTestService(&stubAdapter{name: "alpha", records: []models.CanonicalRecord{
		rec("Live Grant", "NSF", "alpha", "1", 0, 0),
	}})

	resp, err := svc.Search(context.Background(), Request{Text: "live", DataSource: SourceStore})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Provenance.FallbackOccurred {
		t.Error("requesting persistent-store without a store must be flagged as a fallback")
	}
	if resp.Provenance.DataSource != SourceLive {
		t.Errorf("data_source = %q, want live", resp.Provenance.DataSource)
	}
}
