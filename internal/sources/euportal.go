package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/normalize"
)

const euPortalPageSize = 50

// EUPortalAdapter pulls calls from the EU Funding & Tenders portal API.
// Timestamps come back as arrays of unix-millisecond values.
type EUPortalAdapter struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	currency string
	name     string
}

func NewEUPortalAdapter(cfg SourceConfig) *EUPortalAdapter {
	timeout := time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	name := cfg.ID
	if name == "" {
		name = "eu-portal"
	}
	return &EUPortalAdapter{
		client:   &http.Client{Timeout: timeout},
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		currency: cfg.Currency,
		name:     name,
	}
}

func (a *EUPortalAdapter) Name() string { return a.name }

type euResponse struct {
	FundingOpportunities []euOpportunity `json:"fundingOpportunities"`
	TotalCount           int             `json:"totalCount"`
}

type euOpportunity struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Status          string  `json:"status"` // OPEN, CLOSED, FORTHCOMING
	DeadlineDate    []int64 `json:"deadlineDate"`
	OpeningDate     []int64 `json:"openingDate"`
	CallIdentifier  string  `json:"callIdentifier"`
	TopicIdentifier string  `json:"topicIdentifier"`
	Type            string  `json:"type"`
	Budget          string  `json:"budget"`
}

// Fetch paginates once through open and forthcoming calls.
func (a *EUPortalAdapter) Fetch(ctx context.Context, q Query) ([]models.CanonicalRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = euPortalPageSize
	}

	var records []models.CanonicalRecord
	page := 1
	for len(records) < limit {
		reqBody := map[string]interface{}{
			"query":    strings.Join(q.Keywords, " "),
			"page":     page,
			"pageSize": euPortalPageSize,
			"status":   []string{"OPEN", "FORTHCOMING"},
		}
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, srcErr(a.name, "marshaling request", false, err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, srcErr(a.name, "creating request", false, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if a.apiKey != "" {
			req.Header.Set("apikey", a.apiKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, srcErr(a.name, "api request failed", true, err)
		}

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			return nil, srcErr(a.name, fmt.Sprintf("api returned %d: %s", resp.StatusCode, payload), shouldRetry(nil, resp.StatusCode), nil)
		}

		var apiResp euResponse
		err = json.NewDecoder(resp.Body).Decode(&apiResp)
		resp.Body.Close()
		if err != nil {
			return nil, srcErr(a.name, "decoding response", false, err)
		}

		log.Printf("[eu-portal] page %d: %d calls (total %d)", page, len(apiResp.FundingOpportunities), apiResp.TotalCount)

		for _, item := range apiResp.FundingOpportunities {
			rec := a.toRecord(item)
			if err := normalize.Record(&rec, a.currency); err != nil {
				log.Printf("[eu-portal] dropping record: %v", err)
				continue
			}
			records = append(records, rec)
			if len(records) >= limit {
				break
			}
		}

		if len(apiResp.FundingOpportunities) < euPortalPageSize {
			break
		}
		page++
	}

	return records, nil
}

func (a *EUPortalAdapter) toRecord(item euOpportunity) models.CanonicalRecord {
	programType := "grant"
	if strings.EqualFold(item.Type, "Tenders") {
		programType = "tender"
	}

	rec := models.CanonicalRecord{
		Title:        item.Title,
		IssuingBody:  "European Commission",
		Program:      item.CallIdentifier,
		ProgramType:  programType,
		Description:  item.Description,
		AmountRaw:    item.Budget,
		ExternalURL:  fmt.Sprintf("https://ec.europa.eu/info/funding-tenders/opportunities/portal/screen/opportunities/topic-details/%s", item.TopicIdentifier),
		SourceName:   a.name,
		SourceID:     item.TopicIdentifier,
		LastVerified: time.Now().UTC(),
	}

	if len(item.DeadlineDate) > 0 && item.DeadlineDate[0] > 0 {
		t := time.UnixMilli(item.DeadlineDate[0]).UTC()
		rec.Deadline = &t
		rec.DeadlineRaw = t.Format("2006-01-02")
	}
	return rec
}
