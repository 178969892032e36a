// Package api exposes the HTTP trigger and query interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finharvest/filing-harvester/internal/collect"
	"github.com/finharvest/filing-harvester/internal/harvester"
	"github.com/finharvest/filing-harvester/internal/store"
	"github.com/finharvest/filing-harvester/internal/telemetry"
)

type requestIDKey struct{}

// CIKRefresher updates the universe's SEC identifiers from the public
// ticker mapping.
type CIKRefresher interface {
	RefreshCIKs(ctx context.Context) (int, error)
}

// Server wires HTTP handlers to the collector and stores.
type Server struct {
	router     chi.Router
	universe   harvester.Universe
	collector  *collect.Collector
	store      *store.MetadataStore
	summarizer harvester.Summarizer
	refresher  CIKRefresher
	dataRoot   string
	logger     *zap.Logger
	startedAt  time.Time
}

// NewServer constructs a Server with middleware and routes. The
// summarizer may be nil when no API key is configured; its routes then
// answer 503.
func NewServer(
	universe harvester.Universe,
	collector *collect.Collector,
	metadataStore *store.MetadataStore,
	summarizer harvester.Summarizer,
	refresher CIKRefresher,
	dataRoot string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		universe:   universe,
		collector:  collector,
		store:      metadataStore,
		summarizer: summarizer,
		refresher:  refresher,
		dataRoot:   dataRoot,
		logger:     logger,
		startedAt:  time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/companies", s.listCompanies)
		r.Post("/companies/refresh-ciks", s.refreshCIKs)
		r.Route("/companies/{ticker}", func(r chi.Router) {
			r.Get("/", s.getCompany)
			r.Get("/documents", s.listDocuments)
			r.Post("/collect/ir", s.collectIR)
			r.Post("/collect/sec", s.collectSEC)
		})
		r.Post("/collect", s.collectAll)
		r.Post("/summarize/document", s.summarizeDocument)
		r.Get("/summaries", s.listSummaries)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"companies":  len(s.universe.Companies()),
		"documents":  s.store.DocumentCount(),
		"summaries":  len(s.store.Summaries("")),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) listCompanies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"companies": s.universe.Companies()})
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	company, ok := s.universe.CompanyByTicker(ticker)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown ticker")
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) refreshCIKs(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "cik refresh not configured")
		return
	}
	updated, err := s.refresher.RefreshCIKs(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if _, ok := s.universe.CompanyByTicker(strings.ToUpper(ticker)); !ok {
		writeError(w, http.StatusNotFound, "unknown ticker")
		return
	}

	category := harvester.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(w, http.StatusBadRequest, "category must be ir or sec")
		return
	}
	docs := s.store.Documents(ticker, category, r.URL.Query().Get("type"))
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":    strings.ToUpper(ticker),
		"documents": docs,
	})
}

func (s *Server) collectIR(w http.ResponseWriter, r *http.Request) {
	s.runCollect(w, r, s.collector.CollectIR)
}

func (s *Server) collectSEC(w http.ResponseWriter, r *http.Request) {
	opts, err := secOptionsFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runCollect(w, r, func(ctx context.Context, ticker string) ([]harvester.Outcome, error) {
		return s.collector.CollectSEC(ctx, ticker, opts)
	})
}

// secOptionsFromQuery reads per-request overrides for a SEC trigger:
// forms (comma-separated), count, and fetch_all. Absent parameters keep
// the configured defaults.
func secOptionsFromQuery(q url.Values) (*collect.SECOptions, error) {
	if !q.Has("forms") && !q.Has("count") && !q.Has("fetch_all") {
		return nil, nil
	}
	opts := &collect.SECOptions{}
	if v := q.Get("forms"); v != "" {
		for _, form := range strings.Split(v, ",") {
			if form = strings.TrimSpace(form); form != "" {
				opts.FormTypes = append(opts.FormTypes, strings.ToUpper(form))
			}
		}
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errors.New("count must be a positive integer")
		}
		opts.MaxFilings = n
	}
	opts.FetchAllExhibits = q.Get("fetch_all") == "true"
	return opts, nil
}

func (s *Server) runCollect(
	w http.ResponseWriter,
	r *http.Request,
	stage func(context.Context, string) ([]harvester.Outcome, error),
) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	outcomes, err := stage(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, harvester.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := s.store.Save(); err != nil {
		s.logger.Error("store save after collect failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker":   ticker,
		"summary":  harvester.Summarize(outcomes),
		"outcomes": outcomes,
	})
}

func (s *Server) collectAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.collector.RunPass(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type summarizeRequest struct {
	Path string `json:"path"`
}

func (s *Server) summarizeDocument(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summarizer not configured")
		return
	}
	var req summarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "missing document path")
		return
	}

	abs, ok := s.resolveDocumentPath(req.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "path escapes storage root")
		return
	}

	meta, err := s.summarizer.SummarizeDocument(r.Context(), abs)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	meta.SourcePath = filepath.ToSlash(req.Path)
	s.store.AddSummary(meta)
	if err := s.store.Save(); err != nil {
		s.logger.Error("store save after summarize failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) listSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"summaries": s.store.Summaries(r.URL.Query().Get("ticker")),
	})
}

// resolveDocumentPath joins a store-relative path onto the data root,
// rejecting anything that climbs out of it.
func (s *Server) resolveDocumentPath(rel string) (string, bool) {
	abs := filepath.Join(s.dataRoot, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(s.dataRoot)
	if !strings.HasPrefix(filepath.Clean(abs), cleanRoot+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write json failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
