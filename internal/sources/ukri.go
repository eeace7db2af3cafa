package sources

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/normalize"
)

// UKRIAdapter scrapes the UKRI funding finder listing pages. Unlike the API
// adapters it has no structured IDs, so the source ID is derived from the
// opportunity URL. When a listing links a call PDF and no deadline was found
// on the page, the PDF text is mined for date snippets.
type UKRIAdapter struct {
	cfg     SourceConfig
	fetcher Fetcher
	name    string
}

func NewUKRIAdapter(cfg SourceConfig) *UKRIAdapter {
	name := cfg.ID
	if name == "" {
		name = "ukri"
	}
	return &UKRIAdapter{
		cfg:     cfg,
		fetcher: NewRateLimitedFetcher(cfg.Fetch),
		name:    name,
	}
}

func (a *UKRIAdapter) Name() string { return a.name }

func (a *UKRIAdapter) buildCollector(host string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent("grant-discovery/1.0 (+https://github.com/voidcat/grant-discovery)"),
		colly.AllowedDomains(host),
		colly.MaxBodySize(10*1024*1024),
		colly.DetectCharset(),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       2 * time.Second,
		RandomDelay: time.Second,
	})
	timeout := time.Duration(a.cfg.Fetch.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)
	return c
}

// Fetch walks the listing pages and emits one record per opportunity card.
func (a *UKRIAdapter) Fetch(ctx context.Context, q Query) ([]models.CanonicalRecord, error) {
	base, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return nil, srcErr(a.name, "invalid base URL", false, err)
	}

	sel := a.cfg.Selectors
	if sel.Container == "" {
		return nil, srcErr(a.name, "missing container selector", false, nil)
	}

	c := a.buildCollector(base.Host)

	var records []models.CanonicalRecord
	var scrapeErr error

	c.OnHTML(sel.Container, func(e *colly.HTMLElement) {
		link := e.ChildAttr(sel.Link, "href")
		if link == "" {
			link = e.Attr("href")
		}
		link = e.Request.AbsoluteURL(link)

		rec := models.CanonicalRecord{
			Title:        strings.TrimSpace(e.ChildText(sel.Title)),
			IssuingBody:  "UK Research and Innovation",
			Description:  strings.TrimSpace(e.ChildText(sel.Summary)),
			DeadlineRaw:  strings.TrimSpace(e.ChildText(sel.Deadline)),
			AmountRaw:    strings.TrimSpace(e.ChildText(sel.Amount)),
			ExternalURL:  link,
			SourceName:   a.name,
			SourceID:     urlKey(link),
			LastVerified: time.Now().UTC(),
		}

		if rec.DeadlineRaw == "" {
			// Listing cards sometimes only carry the deadline in a
			// linked call document.
			doc := e.DOM
			if pdfHref, ok := doc.Find(`a[href$=".pdf"]`).Attr("href"); ok {
				pdfURL := e.Request.AbsoluteURL(pdfHref)
				if raw := a.deadlineFromPDF(ctx, pdfURL); raw != "" {
					rec.DeadlineRaw = raw
				}
			}
		}

		if err := normalize.Record(&rec, a.cfg.Currency); err != nil {
			log.Printf("[ukri] dropping record: %v", err)
			return
		}
		records = append(records, rec)
	})

	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
	})

	pageURL := a.cfg.BaseURL
	if len(q.Keywords) > 0 {
		u := *base
		qs := u.Query()
		qs.Set("keywords", strings.Join(q.Keywords, " "))
		u.RawQuery = qs.Encode()
		pageURL = u.String()
	}

	maxPages := a.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, srcErr(a.name, "context cancelled", false, err)
		}
		visitURL := pageURL
		if page > 1 {
			u, _ := url.Parse(pageURL)
			qs := u.Query()
			qs.Set("page", strconv.Itoa(page))
			u.RawQuery = qs.Encode()
			visitURL = u.String()
		}
		if err := c.Visit(visitURL); err != nil {
			if page == 1 {
				return nil, srcErr(a.name, "visit failed", true, err)
			}
			break
		}
		c.Wait()
		if q.Limit > 0 && len(records) >= q.Limit {
			records = records[:q.Limit]
			break
		}
	}

	if scrapeErr != nil && len(records) == 0 {
		return nil, srcErr(a.name, "scrape failed", true, scrapeErr)
	}
	return records, nil
}

// deadlineFromPDF fetches a call document and returns the first date
// snippet found in its text, or "".
func (a *UKRIAdapter) deadlineFromPDF(ctx context.Context, pdfURL string) string {
	candidates, err := ExtractPDFDeadlines(ctx, a.fetcher, pdfURL)
	if err != nil {
		log.Printf("[ukri] pdf deadline mining failed for %s: %v", pdfURL, err)
		return ""
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

func urlKey(link string) string {
	u, err := url.Parse(link)
	if err == nil && u.Path != "" {
		trimmed := strings.Trim(u.Path, "/")
		if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if trimmed != "" {
			return trimmed
		}
	}
	sum := sha1.Sum([]byte(link))
	return hex.EncodeToString(sum[:8])
}
