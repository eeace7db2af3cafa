package models

import (
	"time"

	"github.com/google/uuid"
)

// AmountRange is a parsed funding range. Min == 0 with Max > 0 means
// "up to Max"; both zero never appears (an unparseable amount stays nil
// on the record, with the raw text kept for diagnostics).
type AmountRange struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// CanonicalRecord is the normalized, source-agnostic representation of one
// funding opportunity. IDs are derived deterministically from source name +
// source ID so that re-ingestion is idempotent.
type CanonicalRecord struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	IssuingBody string    `json:"issuing_body"`
	Program     string    `json:"program"`
	Description string    `json:"description"`

	// Deadline is nil when the raw string could not be parsed; the raw
	// text is always retained. Never coerced to now/epoch.
	Deadline    *time.Time `json:"deadline"`
	DeadlineRaw string     `json:"deadline_raw,omitempty"`

	Amount    *AmountRange `json:"amount"`
	AmountRaw string       `json:"amount_raw,omitempty"`

	Eligibility []string `json:"eligibility,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ProgramType string   `json:"program_type,omitempty"`

	ExternalURL  string    `json:"external_url"`
	SourceName   string    `json:"source_name"`
	SourceID     string    `json:"source_id"`
	LastVerified time.Time `json:"last_verified"`
}

// recordNamespace anchors deterministic (v5) record IDs. Generated once,
// never changed: changing it would re-key every stored record.
var recordNamespace = uuid.MustParse("8f0e2f1a-4b7c-4d3e-9a51-6c2b8e0d7f43")

// RecordID derives the stable identifier for a record fetched from a source.
// The same (sourceName, sourceID) pair always maps to the same UUID.
func RecordID(sourceName, sourceID string) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, []byte(sourceName+"/"+sourceID))
}

// PerSourceOutcome reports how a single source fared within one aggregation.
type PerSourceOutcome struct {
	Source   string        `json:"source"`
	OK       bool          `json:"ok"`
	Records  int           `json:"records"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ms"`
}
