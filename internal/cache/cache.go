// Package cache keeps recent aggregation results in memory so repeated
// queries do not hammer the upstream sources.
package cache

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/sources"
)

const (
	DefaultTTL      = 12 * time.Hour
	DefaultCapacity = 512
)

// Entry is one cached aggregation pass. Entries are immutable after
// insertion; readers get a defensive copy of the records.
type Entry struct {
	Records  []models.CanonicalRecord
	Outcomes []models.PerSourceOutcome
	StoredAt time.Time
}

// FetchFunc produces a fresh entry for a key on cache miss.
type FetchFunc func(ctx context.Context) ([]models.CanonicalRecord, []models.PerSourceOutcome, error)

// Cache is a TTL-bounded LRU over aggregation results. Concurrent misses on
// the same key coalesce into a single upstream fetch.
type Cache struct {
	lru   *expirable.LRU[string, *Entry]
	group singleflight.Group
	ttl   time.Duration
}

func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		lru: expirable.NewLRU[string, *Entry](capacity, nil, ttl),
		ttl: ttl,
	}
}

// Key builds the canonical cache key for a source query. Keyword order does
// not matter.
func Key(q sources.Query) string {
	kw := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	sort.Strings(kw)
	return strings.Join(kw, ",")
}

// Get returns a copy of the cached entry, if present and fresh.
func (c *Cache) Get(key string) (*Entry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return entry.snapshot(), true
}

// GetOrFetch returns the cached entry for key, or runs fetch to fill it.
// At most one fetch per key is in flight at a time; concurrent callers for
// the same key share the one result. Failed fetches are never cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (*Entry, bool, error) {
	if entry, ok := c.Get(key); ok {
		return entry, true, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have filled the entry while we queued.
		if entry, ok := c.lru.Get(key); ok {
			return entry, nil
		}
		records, outcomes, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		entry := &Entry{
			Records:  records,
			Outcomes: outcomes,
			StoredAt: time.Now().UTC(),
		}
		c.lru.Add(key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		log.Printf("[cache] coalesced concurrent fetch for key %q", key)
	}
	return v.(*Entry).snapshot(), false, nil
}

// Invalidate drops one key.
func (c *Cache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Entries returns a copy of every live entry, most recently used last.
// Used for id lookups against whatever aggregation passes are still warm.
func (c *Cache) Entries() []*Entry {
	values := c.lru.Values()
	out := make([]*Entry, 0, len(values))
	for _, e := range values {
		out = append(out, e.snapshot())
	}
	return out
}

func (e *Entry) snapshot() *Entry {
	cp := &Entry{StoredAt: e.StoredAt}
	cp.Records = append([]models.CanonicalRecord(nil), e.Records...)
	cp.Outcomes = append([]models.PerSourceOutcome(nil), e.Outcomes...)
	return cp
}
