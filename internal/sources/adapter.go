package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/voidcat/grant-discovery/internal/models"
)

// Query is what an adapter sends upstream: free-text keywords plus a soft
// cap on how many records to bring back. A zero Limit means the adapter's
// own default page size.
type Query struct {
	Keywords []string
	Limit    int
}

// Adapter fetches live opportunity data from one upstream source and emits
// canonical records. Implementations never write to shared state; failures
// come back as *SourceError so the aggregator can classify them.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]models.CanonicalRecord, error)
}

// SourceError wraps any failure inside an adapter with the source identity
// and whether a retry could plausibly succeed.
type SourceError struct {
	Source    string
	Reason    string
	Retryable bool
	Err       error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("source %s: %s", e.Source, e.Reason)
}

func (e *SourceError) Unwrap() error { return e.Err }

// AsSourceError extracts a *SourceError from an error chain.
func AsSourceError(err error) (*SourceError, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func srcErr(source, reason string, retryable bool, err error) *SourceError {
	return &SourceError{Source: source, Reason: reason, Retryable: retryable, Err: err}
}
