package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/rankwatch/internal/config"
	"github.com/JakeFAU/rankwatch/internal/export"
	"github.com/JakeFAU/rankwatch/internal/metrics"
	"github.com/JakeFAU/rankwatch/internal/rank"
)

const (
	historyTimeout   = 5 * time.Second
	readinessTimeout = 2 * time.Second
	maxRequestBytes  = 1 << 16
)

// Crawler runs one ranking crawl. It never fails.
type Crawler interface {
	Run(ctx context.Context, query string, targets rank.Targets) rank.CrawlResult
}

// RecentSource lists the crawls kept in process, newest first.
type RecentSource interface {
	Recent() []rank.CrawlResult
}

// Deps lists the collaborators of a Server. History, Recent and Checks are optional.
type Deps struct {
	Crawler Crawler
	History rank.HistoryQuery
	Recent  RecentSource
	// Checks are pinged by /readyz, keyed by component name.
	Checks map[string]rank.Pinger
}

// Server wires HTTP handlers to the crawl orchestrator and history stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Crawler == nil {
		return nil, errors.New("crawler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/positions", s.positions)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.history)
			r.Get("/recent", s.recent)
			r.Get("/export", s.exportHistory)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz pings every configured component and names the first that fails.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps.Checks))
	for name := range s.deps.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := s.deps.Checks[name].Ping(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("readiness check failed", zap.String("component", name), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"component": name,
				"error":     err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type positionsRequest struct {
	Query       string `json:"query"`
	PrimaryID   string `json:"primaryId"`
	ReferenceID string `json:"referenceId"`
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	req.PrimaryID = strings.TrimSpace(req.PrimaryID)
	req.ReferenceID = strings.TrimSpace(req.ReferenceID)
	switch {
	case req.Query == "":
		writeError(w, http.StatusBadRequest, "query is required")
		return
	case req.PrimaryID == "":
		writeError(w, http.StatusBadRequest, "primaryId is required")
		return
	case req.ReferenceID == req.PrimaryID:
		writeError(w, http.StatusBadRequest, "referenceId must differ from primaryId")
		return
	}

	result := s.deps.Crawler.Run(r.Context(), req.Query, rank.NewTargets(req.PrimaryID, req.ReferenceID))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	snaps, ok := s.listSnapshots(w, r)
	if !ok {
		return
	}
	out := make([]rank.CrawlResult, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, rank.ResultFromSnapshot(snap))
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) recent(w http.ResponseWriter, _ *http.Request) {
	out := []rank.CrawlResult{}
	if s.deps.Recent != nil {
		out = append(out, s.deps.Recent.Recent()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": out})
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	snaps, ok := s.listSnapshots(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteHistory(&buf, snaps); err != nil {
		s.logger.Error("export history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export history")
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="rank-history.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("write export failed", zap.Error(err))
	}
}

// listSnapshots parses the history filter and queries the store. It writes the
// error response itself and reports whether the caller should continue.
func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) ([]rank.Snapshot, bool) {
	if s.deps.History == nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return nil, false
	}
	filter, err := parseHistoryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()
	snaps, err := s.deps.History.ListSnapshots(ctx, filter)
	if err != nil {
		s.logger.Error("list snapshots failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return nil, false
	}
	return snaps, true
}

func parseHistoryFilter(r *http.Request) (rank.HistoryFilter, error) {
	q := r.URL.Query()
	filter := rank.HistoryFilter{
		ArticleID: strings.TrimSpace(q.Get("articleId")),
		Query:     strings.TrimSpace(q.Get("query")),
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return rank.HistoryFilter{}, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter.Normalize(), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
