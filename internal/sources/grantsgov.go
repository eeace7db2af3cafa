package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
	"github.com/voidcat/grant-discovery/internal/normalize"
)

const grantsGovDefaultRows = 50

// GrantsGovAdapter pulls opportunities from the Grants.gov search2 API.
type GrantsGovAdapter struct {
	client   *http.Client
	baseURL  string
	currency string
	name     string
}

func NewGrantsGovAdapter(cfg SourceConfig) *GrantsGovAdapter {
	timeout := time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.grants.gov/v1/api/search2"
	}
	name := cfg.ID
	if name == "" {
		name = "grants-gov"
	}
	return &GrantsGovAdapter{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		currency: cfg.Currency,
		name:     name,
	}
}

func (a *GrantsGovAdapter) Name() string { return a.name }

type grantsGovSearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	SortBy         string `json:"sortBy"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

type grantsGovResponse struct {
	Data struct {
		HitCount    int                `json:"hitCount"`
		StartRecord int                `json:"startRecord"`
		OppHits     []grantsGovOppHit  `json:"oppHits"`
	} `json:"data"`
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
}

type grantsGovOppHit struct {
	ID         string   `json:"id"`
	Number     string   `json:"number"`
	Title      string   `json:"title"`
	Agency     string   `json:"agency"`
	AgencyCode string   `json:"agencyCode"`
	OpenDate   string   `json:"openDate"`
	CloseDate  string   `json:"closeDate"`
	OppStatus  string   `json:"oppStatus"`
	DocType    string   `json:"docType"`
	CFDAList   []string `json:"cfdaList"`
}

// Fetch queries search2 and converts hits into canonical records. Detail
// lookups fill in description, eligibility and award range; a failed detail
// call degrades the record instead of failing the batch.
func (a *GrantsGovAdapter) Fetch(ctx context.Context, q Query) ([]models.CanonicalRecord, error) {
	rows := q.Limit
	if rows <= 0 || rows > 200 {
		rows = grantsGovDefaultRows
	}

	searchReq := grantsGovSearchRequest{
		Keyword:        strings.Join(q.Keywords, " "),
		OppStatuses:    "posted",
		SortBy:         "openDate|desc",
		Rows:           rows,
		StartRecordNum: 0,
	}
	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, srcErr(a.name, "marshaling request", false, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, srcErr(a.name, "creating request", false, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Printf("[grants-gov] fetching rows=%d keyword=%q", rows, searchReq.Keyword)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, srcErr(a.name, "api request failed", true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, srcErr(a.name, fmt.Sprintf("api returned %d: %s", resp.StatusCode, payload), shouldRetry(nil, resp.StatusCode), nil)
	}

	var apiResp grantsGovResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, srcErr(a.name, "decoding response", false, err)
	}
	if apiResp.ErrorCode != 0 {
		return nil, srcErr(a.name, "api error: "+apiResp.Msg, false, nil)
	}

	log.Printf("[grants-gov] got %d hits (total %d)", len(apiResp.Data.OppHits), apiResp.Data.HitCount)

	var records []models.CanonicalRecord
	for _, hit := range apiResp.Data.OppHits {
		rec := models.CanonicalRecord{
			Title:        hit.Title,
			IssuingBody:  hit.Agency,
			Program:      hit.Number,
			ProgramType:  hit.DocType,
			Tags:         hit.CFDAList,
			DeadlineRaw:  hit.CloseDate,
			ExternalURL:  fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", hit.ID),
			SourceName:   a.name,
			SourceID:     hit.ID,
			LastVerified: time.Now().UTC(),
		}

		// CloseDate comes back as MM/DD/YYYY.
		if hit.CloseDate != "" {
			if t, err := time.Parse("01/02/2006", hit.CloseDate); err == nil {
				eod := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
				rec.Deadline = &eod
			}
		}

		a.enrichFromDetails(ctx, &rec, hit.ID)

		if err := normalize.Record(&rec, a.currency); err != nil {
			log.Printf("[grants-gov] dropping record: %v", err)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// enrichFromDetails fetches the opportunity synopsis for award amounts and
// eligibility text. Errors are logged and swallowed.
func (a *GrantsGovAdapter) enrichFromDetails(ctx context.Context, rec *models.CanonicalRecord, oppID string) {
	detailURL := strings.Replace(a.baseURL, "search2", "fetchOpportunity", 1)
	body, _ := json.Marshal(map[string]string{"id": oppID})

	req, err := http.NewRequestWithContext(ctx, "POST", detailURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[grants-gov] detail fetch for %s failed: %v", oppID, err)
		return
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return
	}

	syn, ok := result["synopsis"].(map[string]interface{})
	if !ok {
		return
	}
	if desc, ok := syn["synopsisDesc"].(string); ok && desc != "" {
		rec.Description = desc
	}
	if elig, ok := syn["applicantEligibilityDesc"].(string); ok && elig != "" {
		rec.Eligibility = normalize.SplitList(elig)
	}

	var min, max float64
	if floor, ok := syn["awardFloor"].(string); ok {
		min = parseDollar(floor)
	}
	if ceiling, ok := syn["awardCeiling"].(string); ok {
		max = parseDollar(ceiling)
	}
	if min > 0 || max > 0 {
		rec.Amount = &models.AmountRange{Min: min, Max: max, Currency: "USD"}
	}
}

func parseDollar(s string) float64 {
	clean := strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil {
		return 0
	}
	return v
}
