package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/sources"
)

// ErrAllSourcesFailed is returned when every configured source fails in
// one aggregation pass. Partial failure is not an error.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Result is one complete aggregation pass: the merged records plus what
// happened per source.
type Result struct {
	Records  []models.CanonicalRecord
	Outcomes []models.PerSourceOutcome
}

// Aggregator fans a query out to every adapter, waits for all of them, and
// merges whatever came back through the deduplicator.
type Aggregator struct {
	adapters []sources.Adapter
	dedupe   *Deduplicator
	timeout  time.Duration
}

func NewAggregator(adapters []sources.Adapter, dedupe *Deduplicator, perSourceTimeout time.Duration) *Aggregator {
	if dedupe == nil {
		dedupe = NewDeduplicator(1.0)
	}
	if perSourceTimeout == 0 {
		perSourceTimeout = 90 * time.Second
	}
	return &Aggregator{adapters: adapters, dedupe: dedupe, timeout: perSourceTimeout}
}

// Fetch runs the query against all sources concurrently. One slow or broken
// source never hides the others: each gets its own timeout, and errors are
// reported in the outcomes rather than propagated, unless every source
// fails, which surfaces as ErrAllSourcesFailed.
func (a *Aggregator) Fetch(ctx context.Context, q sources.Query) (*Result, error) {
	outcomes := make([]models.PerSourceOutcome, len(a.adapters))
	batches := make([][]models.CanonicalRecord, len(a.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range a.adapters {
		g.Go(func() error {
			start := time.Now()
			fetchCtx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			records, err := adapter.Fetch(fetchCtx, q)
			outcome := models.PerSourceOutcome{
				Source:   adapter.Name(),
				Duration: time.Since(start),
			}
			if err != nil {
				outcome.Error = err.Error()
				log.Printf("[aggregator] source %s failed: %v", adapter.Name(), err)
			} else {
				outcome.OK = true
				outcome.Records = len(records)
				batches[i] = records
			}
			outcomes[i] = outcome
			// Never abort the group: sibling sources keep running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	anyOK := false
	var merged []models.CanonicalRecord
	for i, batch := range batches {
		if outcomes[i].OK {
			anyOK = true
		}
		merged = append(merged, batch...)
	}
	if !anyOK && len(a.adapters) > 0 {
		return &Result{Outcomes: outcomes}, ErrAllSourcesFailed
	}

	deduped := a.dedupe.Merge(merged)
	log.Printf("[aggregator] %d records from %d sources, %d after dedup",
		len(merged), len(a.adapters), len(deduped))

	return &Result{Records: deduped, Outcomes: outcomes}, nil
}
