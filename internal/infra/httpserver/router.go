package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appai "github.com/bryanwahyu/automaton-recon/internal/application/ai"
	apprecon "github.com/bryanwahyu/automaton-recon/internal/application/recon"
	aidomain "github.com/bryanwahyu/automaton-recon/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
	"github.com/bryanwahyu/automaton-recon/internal/middleware"
)

type Router struct {
	recon   *apprecon.Service
	ai      *appai.Service
	errRepo scanerrors.Repository
}

// Config carries the HTTP-surface knobs resolved from the config file.
type Config struct {
	APIKeys        []string
	AllowedOrigins []string
	RateCapacity   int
	RateRefill     int
	Limiter        *middleware.RateLimiter // optional, caller keeps a handle for SetRate
	Checkers       map[string]middleware.HealthChecker
}

func NewRouter(reconSvc *apprecon.Service, aiSvc *appai.Service, errRepo scanerrors.Repository, cfg Config) http.Handler {
	r := &Router{recon: reconSvc, ai: aiSvc, errRepo: errRepo}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(cfg.APIKeys))
	switch {
	case cfg.Limiter != nil:
		mux.Use(cfg.Limiter.Middleware)
	case cfg.RateCapacity > 0 && cfg.RateRefill > 0:
		mux.Use(middleware.RateLimitMiddleware(cfg.RateCapacity, cfg.RateRefill))
	}

	mux.Get("/health", middleware.HealthHandler(cfg.Checkers))
	mux.Get("/health/live", middleware.LivenessHandler)
	mux.Get("/health/ready", middleware.ReadinessHandler(cfg.Checkers))
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scans", r.wrap(r.handleSubmitScan))
		rt.Get("/scans", r.wrap(r.handleList))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/{id}/findings", r.wrap(r.handleFindings))
		rt.Get("/scans/{id}/errors", r.wrap(r.handleErrors))
		rt.Post("/scans/{id}/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/scans/{id}/analysis", r.wrap(r.handleAnalysis))
		rt.Get("/targets/{target}/latest", r.wrap(r.handleLatest))
		rt.Get("/targets/{target}/history", r.wrap(r.handleHistory))
		rt.Get("/targets/{target}/diff", r.wrap(r.handleDiff))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				http.Error(w, verr.Error(), http.StatusBadRequest)
				return
			}
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			if errors.Is(err, aidomain.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/scans
// Body: {"target":"example.com","profile":"active","strict":false,"max_seconds":900,"workers":4}
// Jalanin scan di background, langsung balikin id buat polling.
func (r *Router) handleSubmitScan(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Target     string `json:"target"`
		Profile    string `json:"profile"`
		Strict     *bool  `json:"strict"`
		MaxSeconds int    `json:"max_seconds"`
		Workers    int    `json:"workers"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}

	cmd := apprecon.StartScanCommand{
		Target:  middleware.SanitizeString(body.Target),
		Profile: body.Profile,
		Strict:  body.Strict,
		Workers: body.Workers,
	}
	if body.MaxSeconds > 0 {
		cmd.MaxDuration = time.Duration(body.MaxSeconds) * time.Second
	}

	id, err := r.recon.Submit(req.Context(), cmd)
	if err != nil {
		return err
	}
	middleware.IncrementScansSubmitted()

	return writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"scan_id": id,
		"status":  domain.StatusRunning,
	})
}

// GET /v1/scans?limit=&cursor=&target=&status=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	lq := domain.ListQuery{
		Limit:  middleware.ValidateLimit(limit),
		Target: strings.TrimSpace(q.Get("target")),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := domain.ParseScanStatus(raw)
		if err != nil {
			return err
		}
		lq.Status = status
	}
	if raw := q.Get("cursor"); raw != "" {
		ts, id, err := parseCursor(raw)
		if err != nil {
			return err
		}
		lq.CursorTime, lq.CursorID = ts, id
	}

	page, err := r.recon.List(req.Context(), lq)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, page)
}

// GET /v1/scans/{id}
// Balas 202 selama scan masih jalan, 200 kalau sudah selesai.
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}

	report, err := r.recon.Get(req.Context(), domain.ScanID(id))
	if err != nil {
		return err
	}

	status := http.StatusOK
	if !report.Terminal() {
		status = http.StatusAccepted
	}
	return writeJSON(w, status, report)
}

// GET /v1/scans/{id}/findings?kind=&tool=
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	q := req.URL.Query()

	findings, err := r.recon.Findings(req.Context(), domain.ScanID(id), q.Get("kind"), q.Get("tool"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"scan_id":  id,
		"count":    len(findings),
		"findings": findings,
	})
}

// GET /v1/scans/{id}/errors?limit=
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}

	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	rows, err := r.errRepo.ListByScan(req.Context(), id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []*scanerrors.ScanError{}
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{
		"scan_id": id,
		"errors":  rows,
	})
}

// POST /v1/scans/{id}/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}

	analysis, err := r.ai.Analyze(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, analysis)
}

// GET /v1/scans/{id}/analysis
func (r *Router) handleAnalysis(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}

	analysis, err := r.ai.Latest(req.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, analysis)
}

// GET /v1/targets/{target}/latest
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	report, err := r.recon.Latest(req.Context(), targetParam(req))
	if err != nil {
		return err
	}

	status := http.StatusOK
	if !report.Terminal() {
		status = http.StatusAccepted
	}
	return writeJSON(w, status, report)
}

// GET /v1/targets/{target}/history?limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	rows, err := r.recon.History(req.Context(), targetParam(req), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []*domain.Report{}
	}
	return writeJSON(w, http.StatusOK, rows)
}

// GET /v1/targets/{target}/diff
func (r *Router) handleDiff(w http.ResponseWriter, req *http.Request) error {
	diff, err := r.recon.Diff(req.Context(), targetParam(req))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, diff)
}

// GET /v1/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.recon.Summary(req.Context(), middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// targetParam unescapes the target segment; CIDR targets arrive with an
// encoded slash.
func targetParam(req *http.Request) string {
	raw := chi.URLParam(req, "target")
	if dec, err := url.PathUnescape(raw); err == nil {
		raw = dec
	}
	return middleware.SanitizeString(raw)
}

func parseCursor(raw string) (time.Time, string, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", &domain.ValidationError{Field: "cursor", Reason: "want <RFC3339Nano>,<scan id>"}
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", &domain.ValidationError{Field: "cursor", Reason: fmt.Sprintf("bad timestamp: %v", err)}
	}
	return ts, parts[1], nil
}
