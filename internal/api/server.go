package api

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/voidcat/grant-discovery/internal/pipeline"
	"github.com/voidcat/grant-discovery/internal/scoring"
	"github.com/voidcat/grant-discovery/internal/search"
	"github.com/voidcat/grant-discovery/internal/sources"
	"github.com/voidcat/grant-discovery/internal/timeline"
)

type Server struct {
	Echo     *echo.Echo
	Search   *search.Service
	Registry *sources.Registry
}

func NewServer(svc *search.Service, reg *sources.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{Echo: e, Search: svc, Registry: reg}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/grants", s.handleSearchGrants)
	api.POST("/grants/search", s.handleSearchGrants)
	api.GET("/grants/:id", s.handleGetGrant)
	api.GET("/grants/:id/plan", s.handleGetPlan)
	api.GET("/sources", s.handleGetSources)
	api.POST("/admin/ingest", s.handleTriggerIngest)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// searchBody is the optional JSON payload for profile-aware searches. The
// POST variant exists because a GET body does not survive every proxy.
type searchBody struct {
	Profile *scoring.Profile `json:"profile,omitempty"`
}

func (s *Server) handleSearchGrants(c echo.Context) error {
	req := search.Request{
		Text:       c.QueryParam("q"),
		Sort:       c.QueryParam("sort"),
		DataSource: c.QueryParam("source"),
	}

	if v := c.QueryParam("agency"); v != "" {
		req.Filters.Agencies = append(req.Filters.Agencies, v)
	}
	if v := c.QueryParam("agencies"); v != "" {
		req.Filters.Agencies = append(req.Filters.Agencies, splitCSV(v)...)
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_amount"), 64); err == nil && v > 0 {
		req.Filters.AmountMin = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("max_amount"), 64); err == nil && v > 0 {
		req.Filters.AmountMax = v
	}
	if t, ok := parseDateParam(c.QueryParam("deadline_from")); ok {
		req.Filters.DeadlineFrom = &t
	}
	if t, ok := parseDateParam(c.QueryParam("deadline_to")); ok {
		req.Filters.DeadlineTo = &t
	}
	req.Filters.Eligibility = c.QueryParam("eligibility")
	req.Filters.ProgramType = c.QueryParam("program_type")

	if v, err := strconv.Atoi(c.QueryParam("page")); err == nil && v > 0 {
		req.Page = v
	}
	if v, err := strconv.Atoi(c.QueryParam("page_size")); err == nil && v > 0 {
		req.PageSize = v
	}

	if c.Request().ContentLength > 0 {
		var body searchBody
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		req.Profile = body.Profile
	}

	resp, err := s.Search.Search(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllSourcesFailed) {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"error":     "live data temporarily unavailable, retry later",
				"retryable": true,
			})
		}
		c.Logger().Errorf("search failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetGrant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	rec, err := s.Search.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		c.Logger().Errorf("get grant: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetPlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	rec, err := s.Search.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, search.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
		}
		c.Logger().Errorf("get plan: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	plan := timeline.BuildPlan(rec.Deadline, time.Now().UTC())
	return c.JSON(http.StatusOK, plan)
}

type sourceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleGetSources(c echo.Context) error {
	out := make([]sourceInfo, 0, len(s.Registry.Sources))
	for _, src := range s.Registry.Sources {
		out = append(out, sourceInfo{ID: src.ID, Name: src.Name, Kind: src.Kind, Enabled: src.Enabled})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleTriggerIngest(c echo.Context) error {
	q := sources.Query{Keywords: splitCSV(c.QueryParam("keywords"))}
	summary, err := s.Search.Ingest(c.Request().Context(), q)
	if err != nil {
		if errors.Is(err, pipeline.ErrAllSourcesFailed) {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"error":     "live data temporarily unavailable, retry later",
				"retryable": true,
			})
		}
		c.Logger().Errorf("ingest failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func parseDateParam(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}
