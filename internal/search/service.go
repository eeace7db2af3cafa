package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voidcat/grant-discovery/internal/cache"
	"github.com/voidcat/grant-discovery/internal/db"
	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/pipeline"
	"github.com/voidcat/grant-discovery/internal/scoring"
	"github.com/voidcat/grant-discovery/internal/sources"
)

// ErrNotFound is returned by Get when no record matches the id.
var ErrNotFound = errors.New("record not found")

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Data source labels reported in provenance.
const (
	SourceCache = "cache"
	SourceLive  = "live"
	SourceStore = "persistent-store"
)

// Filters narrow a search result set. All fields are optional and compose
// with AND semantics.
type Filters struct {
	Agencies     []string
	AmountMin    float64
	AmountMax    float64
	DeadlineFrom *time.Time
	DeadlineTo   *time.Time
	Eligibility  string
	ProgramType  string
}

// Request is one search invocation.
type Request struct {
	Text       string
	Filters    Filters
	Profile    *scoring.Profile
	Page       int
	PageSize   int
	Sort       string // relevance (default), deadline, amount_desc
	DataSource string // empty means cache-then-live; "persistent-store" reads Postgres
}

// ScoredRecord pairs a record with its computed match score.
type ScoredRecord struct {
	models.CanonicalRecord
	Score scoring.MatchScore `json:"score"`
}

// Provenance reports where the data in a response came from and how
// complete it is.
type Provenance struct {
	DataSource       string                    `json:"data_source"`
	FallbackOccurred bool                      `json:"fallback_occurred"`
	FallbackReason   string                    `json:"fallback_reason,omitempty"`
	SourceOutcomes   []models.PerSourceOutcome `json:"source_outcomes,omitempty"`
	Degraded         bool                      `json:"degraded"`
}

// Response is a scored, filtered, paginated result set.
type Response struct {
	Records      []ScoredRecord `json:"records"`
	TotalMatched int            `json:"total_matched"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	Provenance   Provenance     `json:"provenance"`
}

// IngestSummary describes one run of the ingestion pipeline.
type IngestSummary struct {
	Fetched  int                       `json:"fetched"`
	Upserted int                       `json:"upserted"`
	Outcomes []models.PerSourceOutcome `json:"outcomes"`
	Duration time.Duration             `json:"duration_ms"`
}

// Service orchestrates cache, live aggregation, scoring, and the optional
// persistent store behind one search entry point. Construct once at process
// start and share; all methods are safe for concurrent use.
type Service struct {
	cache *cache.Cache
	agg   *pipeline.Aggregator
	store *db.Store // nil when no database is configured
}

func NewService(c *cache.Cache, agg *pipeline.Aggregator, store *db.Store) *Service {
	return &Service{cache: c, agg: agg, store: store}
}

// Search runs the full query path: cache (then live aggregation on miss),
// scoring of every candidate, filtering, sorting, and pagination. An
// all-sources failure is returned as an error wrapping
// pipeline.ErrAllSourcesFailed, never as an empty result.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	req = normalizeRequest(req)

	prov := Provenance{}
	if req.DataSource == SourceStore {
		if s.store != nil {
			return s.searchStore(ctx, req)
		}
		prov.FallbackOccurred = true
		prov.FallbackReason = "persistent store not configured, serving live data"
		log.Printf("[search] persistent-store requested but unavailable, falling back to live")
	}

	q := sources.Query{Keywords: keywords(req.Text)}
	key := cache.Key(q)

	entry, hit, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) ([]models.CanonicalRecord, []models.PerSourceOutcome, error) {
		res, err := s.agg.Fetch(ctx, q)
		if err != nil {
			return nil, nil, err
		}
		return res.Records, res.Outcomes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", req.Text, err)
	}

	if hit {
		prov.DataSource = SourceCache
	} else {
		prov.DataSource = SourceLive
	}
	prov.SourceOutcomes = entry.Outcomes
	for _, o := range entry.Outcomes {
		if !o.OK {
			prov.Degraded = true
			if prov.FallbackReason == "" {
				prov.FallbackReason = fmt.Sprintf("source %s failed: %s", o.Source, o.Error)
			}
			prov.FallbackOccurred = true
		}
	}

	scored := s.scoreAll(entry.Records, req)
	matched := filterScored(scored, req.Filters)
	sortScored(matched, req.Sort)

	resp := &Response{
		TotalMatched: len(matched),
		Page:         req.Page,
		PageSize:     req.PageSize,
		Provenance:   prov,
	}
	resp.Records = paginate(matched, req.Page, req.PageSize)
	return resp, nil
}

// searchStore serves a search from the Postgres snapshot. Filtering and
// pagination are pushed down to SQL; the returned page is scored for display.
func (s *Service) searchStore(ctx context.Context, req Request) (*Response, error) {
	params := db.ListParams{
		Query:        req.Text,
		Agencies:     req.Filters.Agencies,
		AmountMin:    req.Filters.AmountMin,
		AmountMax:    req.Filters.AmountMax,
		DeadlineFrom: req.Filters.DeadlineFrom,
		DeadlineTo:   req.Filters.DeadlineTo,
		Eligibility:  req.Filters.Eligibility,
		ProgramType:  req.Filters.ProgramType,
		Limit:        req.PageSize,
		Offset:       (req.Page - 1) * req.PageSize,
	}
	res, err := s.store.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("store search %q: %w", req.Text, err)
	}

	sq := &scoring.Query{Text: req.Text, Profile: req.Profile}
	out := make([]ScoredRecord, 0, len(res.Records))
	for i := range res.Records {
		out = append(out, ScoredRecord{
			CanonicalRecord: res.Records[i],
			Score:           scoring.Score(&res.Records[i], sq),
		})
	}
	return &Response{
		Records:      out,
		TotalMatched: res.Total,
		Page:         req.Page,
		PageSize:     req.PageSize,
		Provenance:   Provenance{DataSource: SourceStore},
	}, nil
}

// Get resolves one record by id, preferring the persistent store and falling
// back to whatever aggregation passes are still cached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.CanonicalRecord, error) {
	if s.store != nil {
		rec, err := s.store.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
	}
	for _, entry := range s.cache.Entries() {
		for i := range entry.Records {
			if entry.Records[i].ID == id {
				rec := entry.Records[i]
				return &rec, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Ingest runs one aggregation pass and persists the deduplicated result.
// Safe to run concurrently with live queries: upserts are idempotent because
// record ids are deterministic.
func (s *Service) Ingest(ctx context.Context, q sources.Query) (*IngestSummary, error) {
	if s.store == nil {
		return nil, errors.New("ingest requires a configured persistent store")
	}
	start := time.Now()

	res, err := s.agg.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ingest aggregation: %w", err)
	}
	n, err := s.store.Upsert(ctx, res.Records)
	if err != nil {
		return nil, fmt.Errorf("ingest upsert: %w", err)
	}
	log.Printf("[ingest] fetched=%d upserted=%d in %s", len(res.Records), n, time.Since(start).Round(time.Millisecond))
	return &IngestSummary{
		Fetched:  len(res.Records),
		Upserted: n,
		Outcomes: res.Outcomes,
		Duration: time.Since(start),
	}, nil
}

func (s *Service) scoreAll(records []models.CanonicalRecord, req Request) []ScoredRecord {
	sq := &scoring.Query{Text: req.Text, Profile: req.Profile}
	out := make([]ScoredRecord, 0, len(records))
	for i := range records {
		out = append(out, ScoredRecord{
			CanonicalRecord: records[i],
			Score:           scoring.Score(&records[i], sq),
		})
	}
	return out
}

func normalizeRequest(req Request) Request {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}
	return req
}

func keywords(text string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(text)))
}

func filterScored(records []ScoredRecord, f Filters) []ScoredRecord {
	out := records[:0:0]
	for _, r := range records {
		if matches(&r.CanonicalRecord, f) {
			out = append(out, r)
		}
	}
	return out
}

func matches(rec *models.CanonicalRecord, f Filters) bool {
	if len(f.Agencies) > 0 {
		found := false
		for _, a := range f.Agencies {
			if strings.EqualFold(strings.TrimSpace(a), rec.IssuingBody) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.AmountMin > 0 {
		if rec.Amount == nil || rec.Amount.Max < f.AmountMin {
			return false
		}
	}
	if f.AmountMax > 0 {
		if rec.Amount == nil || rec.Amount.Min > f.AmountMax {
			return false
		}
	}
	if f.DeadlineFrom != nil {
		if rec.Deadline == nil || rec.Deadline.Before(*f.DeadlineFrom) {
			return false
		}
	}
	if f.DeadlineTo != nil {
		if rec.Deadline == nil || rec.Deadline.After(*f.DeadlineTo) {
			return false
		}
	}
	if f.Eligibility != "" {
		found := false
		for _, e := range rec.Eligibility {
			if strings.Contains(strings.ToLower(e), strings.ToLower(f.Eligibility)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ProgramType != "" && !strings.EqualFold(f.ProgramType, rec.ProgramType) {
		return false
	}
	return true
}

func sortScored(records []ScoredRecord, by string) {
	switch by {
	case "deadline":
		sort.SliceStable(records, func(i, j int) bool {
			di, dj := records[i].Deadline, records[j].Deadline
			if di == nil {
				return false
			}
			if dj == nil {
				return true
			}
			return di.Before(*dj)
		})
	case "amount_desc":
		sort.SliceStable(records, func(i, j int) bool {
			return amountCeiling(&records[i].CanonicalRecord) > amountCeiling(&records[j].CanonicalRecord)
		})
	default: // relevance
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Score.Overall > records[j].Score.Overall
		})
	}
}

func amountCeiling(rec *models.CanonicalRecord) float64 {
	if rec.Amount == nil {
		return -1
	}
	if rec.Amount.Max > 0 {
		return rec.Amount.Max
	}
	return rec.Amount.Min
}

func paginate(records []ScoredRecord, page, pageSize int) []ScoredRecord {
	start := (page - 1) * pageSize
	if start >= len(records) {
		return []ScoredRecord{}
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}
