package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/voidcat/grant-discovery/internal/models"
)

func TestGrantsGovAdapterFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"errorcode": 0,
			"data": {
				"hitCount": 2,
				"oppHits": [
					{"id": "358861", "number": "NSF-24-501", "title": "Smart Grid Research",
					 "agency": "National Science Foundation", "closeDate": "12/31/2026",
					 "oppStatus": "posted", "docType": "synopsis", "cfdaList": ["47.041"]},
					{"id": "358862", "number": "DOE-24-002", "title": "",
					 "agency": "Department of Energy", "closeDate": "01/15/2027"}
				]
			}
		}`))
	}))
	defer srv.Close()

	adapter := NewGrantsGovAdapter(SourceConfig{ID: "grants-gov", BaseURL: srv.URL, Currency: "USD"})
	records, err := adapter.Fetch(context.Background(), Query{Keywords: []string{"energy"}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Second hit has no title and must be dropped.
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Title != "Smart Grid Research" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.SourceID != "358861" {
		t.Errorf("source id = %q", rec.SourceID)
	}
	if rec.Deadline == nil {
		t.Fatal("deadline not parsed")
	}
	want := time.Date(2026, 12, 31, 23, 59, 59, 999999999, time.UTC)
	if !rec.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", rec.Deadline, want)
	}
	if rec.ID != models.RecordID("grants-gov", "358861") {
		t.Errorf("record ID not deterministic: %s", rec.ID)
	}
}

func TestGrantsGovAdapterServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewGrantsGovAdapter(SourceConfig{ID: "grants-gov", BaseURL: srv.URL})
	_, err := adapter.Fetch(context.Background(), Query{})
	if err == nil {
		t.Fatal("expected error")
	}
	se, ok := AsSourceError(err)
	if !ok {
		t.Fatalf("expected SourceError, got %T", err)
	}
	if se.Source != "grants-gov" {
		t.Errorf("source = %q", se.Source)
	}
	if !se.Retryable {
		t.Error("503 should be retryable")
	}
}

func TestEUPortalAdapterFetch(t *testing.T) {
	deadline := time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"totalCount": 1,
			"fundingOpportunities": [
				{"topicIdentifier": "HORIZON-CL5-2026-D3-01", "callIdentifier": "HORIZON-CL5-2026",
				 "title": "Clean Energy Transition", "description": "<p>Call text</p>",
				 "status": "OPEN", "type": "Grant", "budget": "up to 2.000.000 €",
				 "deadlineDate": [` + itoaMilli(deadline) + `]}
			]
		}`))
	}))
	defer srv.Close()

	adapter := NewEUPortalAdapter(SourceConfig{ID: "eu-portal", BaseURL: srv.URL, Currency: "EUR"})
	records, err := adapter.Fetch(context.Background(), Query{Limit: 10})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Deadline == nil || !rec.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", rec.Deadline, deadline)
	}
	if rec.Amount == nil || rec.Amount.Max != 2000000 || rec.Amount.Currency != "EUR" {
		t.Errorf("amount = %+v", rec.Amount)
	}
	if rec.Description != "<p>Call text</p>" {
		t.Errorf("description = %q", rec.Description)
	}
}

func itoaMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func TestDeadlineCandidatesFromText(t *testing.T) {
	text := "Applications open 1 March 2026. Closing date: 30 June 2026 at 16:00. Assessment in July."
	got := deadlineCandidatesFromText(text)
	if len(got) != 2 {
		t.Fatalf("got %v, want 2 candidates", got)
	}
	if got[0] != "1 March 2026" {
		t.Errorf("first candidate = %q, want soonest date first", got[0])
	}
}

func TestURLKey(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"https://www.ukri.org/opportunity/smart-materials-2026/", "smart-materials-2026"},
		{"https://www.ukri.org/opportunity/ai-for-health/", "ai-for-health"},
	}
	for _, tt := range tests {
		if got := urlKey(tt.link); got != tt.want {
			t.Errorf("urlKey(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
	// Same link always maps to the same key.
	if urlKey("https://x.test/?a=1") != urlKey("https://x.test/?a=1") {
		t.Error("urlKey not stable")
	}
}

func TestLoadRegistry(t *testing.T) {
	reg, err := LoadRegistry("")
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(reg.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(reg.Sources))
	}
	adapters, err := BuildAdapters(reg)
	if err != nil {
		t.Fatalf("BuildAdapters: %v", err)
	}
	if len(adapters) != 3 {
		t.Fatalf("got %d adapters, want 3", len(adapters))
	}
	names := map[string]bool{}
	for _, a := range adapters {
		names[a.Name()] = true
	}
	for _, want := range []string{"grants-gov", "eu-portal", "ukri"} {
		if !names[want] {
			t.Errorf("missing adapter %q", want)
		}
	}
}
