package normalize

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
)

// Record finalizes a partially filled canonical record coming out of a
// source adapter: text fields are cleaned, the deadline and amount raw
// strings are parsed, and the deterministic ID is assigned. Returns an
// error when the record fails minimal validation; the caller logs and
// drops it without aborting the batch.
func Record(rec *models.CanonicalRecord, defaultCurrency string) error {
	rec.Title = ValidUTF8(HTMLToText(rec.Title))
	rec.IssuingBody = ValidUTF8(HTMLToText(rec.IssuingBody))
	rec.Program = ValidUTF8(HTMLToText(rec.Program))
	rec.Description = ValidUTF8(SanitizeHTML(rec.Description))

	if strings.TrimSpace(rec.Title) == "" {
		return fmt.Errorf("missing title (source=%s id=%s)", rec.SourceName, rec.SourceID)
	}
	if strings.TrimSpace(rec.SourceName) == "" || strings.TrimSpace(rec.SourceID) == "" {
		return fmt.Errorf("missing source identity for %q", rec.Title)
	}

	if rec.Deadline == nil && strings.TrimSpace(rec.DeadlineRaw) != "" {
		if t, err := ParseDeadline(rec.DeadlineRaw); err == nil {
			rec.Deadline = &t
		} else {
			log.Printf("[normalize] unparseable deadline %q for %q, keeping raw", rec.DeadlineRaw, rec.Title)
		}
	}
	if rec.Deadline != nil {
		t := rec.Deadline.UTC()
		rec.Deadline = &t
	}

	if rec.Amount == nil && strings.TrimSpace(rec.AmountRaw) != "" {
		rec.Amount = ParseAmount(rec.AmountRaw, defaultCurrency)
	}

	rec.Eligibility = MergeUniqueFold(nil, rec.Eligibility)
	rec.Tags = MergeUniqueFold(nil, rec.Tags)

	if rec.LastVerified.IsZero() {
		rec.LastVerified = time.Now().UTC()
	}
	rec.ID = models.RecordID(rec.SourceName, rec.SourceID)
	return nil
}
