// Package api exposes the HTTP interface for the metadata resolver service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/config"
	"github.com/curator/metadata-resolver/internal/metrics"
	"github.com/curator/metadata-resolver/internal/resolver"
	"github.com/curator/metadata-resolver/internal/review"
	"github.com/curator/metadata-resolver/internal/videocache"
)

// Resolver produces a date resolution for a single URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) resolver.Result
}

// IDGenerator mints identifiers for review records.
type IDGenerator interface {
	NewID() (string, error)
}

// Server wires HTTP handlers to the resolver, the video cache, and the
// review pipeline.
type Server struct {
	router      chi.Router
	resolver    Resolver
	videos      *videocache.Service
	escalator   *review.Escalator
	reviewStore review.Store
	idGen       IDGenerator
	clock       resolver.Clock
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	res Resolver,
	videos *videocache.Service,
	escalator *review.Escalator,
	reviewStore review.Store,
	idGen IDGenerator,
	clock resolver.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resolver:    res,
		videos:      videos,
		escalator:   escalator,
		reviewStore: reviewStore,
		idGen:       idGen,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.resolveDate)
		r.Route("/videos", func(r chi.Router) {
			r.Get("/", s.listVideos)
			r.Post("/refresh", s.refreshVideos)
		})
		r.Route("/review", func(r chi.Router) {
			r.Get("/summary", s.reviewSummary)
			r.Get("/queue", s.reviewQueue)
			r.Post("/{record_id}/mark", s.markReviewed)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, s.logger)
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	URL    string          `json:"url"`
	Result resolver.Result `json:"result"`
}

func (s *Server) resolveDate(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", s.logger)
		return
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		writeError(w, http.StatusBadRequest, "url required", s.logger)
		return
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		writeError(w, http.StatusBadRequest, "url must be absolute", s.logger)
		return
	}

	result := s.resolver.Resolve(r.Context(), target)
	if result.NeedsReview && s.escalator != nil {
		if err := s.escalate(r.Context(), target, result); err != nil {
			s.logger.Warn("review escalation failed",
				zap.String("url", target),
				zap.Error(err),
			)
		}
	}
	writeJSON(w, http.StatusOK, resolveResponse{URL: target, Result: result}, s.logger)
}

func (s *Server) escalate(ctx context.Context, target string, result resolver.Result) error {
	id, err := s.idGen.NewID()
	if err != nil {
		return fmt.Errorf("generate record id: %w", err)
	}
	rec := review.Record{
		ID:            id,
		URL:           target,
		Domain:        domainOf(target),
		PublishedDate: result.PublishedDate,
		Confidence:    result.Confidence,
		Method:        result.Method,
		NeedsReview:   true,
		Notes:         result.Notes,
		Priority:      review.Classify(result.Confidence, result.Method, s.escalator.Bands()),
		CreatedAt:     s.clock.Now(),
	}
	return s.escalator.Escalate(ctx, rec)
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	records, err := s.videos.Get(r.Context(), force)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "video metadata unavailable", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": records}, s.logger)
}

func (s *Server) refreshVideos(w http.ResponseWriter, r *http.Request) {
	s.videos.RefreshInBackground(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"}, s.logger)
}

func (s *Server) reviewSummary(w http.ResponseWriter, r *http.Request) {
	records, err := s.reviewStore.ListPending(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list review records", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, review.Summarize(records), s.logger)
}

func (s *Server) reviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Review.QueueLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", s.logger)
			return
		}
		limit = parsed
	}
	records, err := s.reviewStore.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list review records", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records}, s.logger)
}

type markReviewedRequest struct {
	Reviewer      string     `json:"reviewer"`
	CorrectedDate *time.Time `json:"corrected_date"`
}

func (s *Server) markReviewed(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "record_id")
	var req markReviewedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "missing reviewer", s.logger)
		return
	}
	if err := s.reviewStore.MarkReviewed(r.Context(), recordID, req.Reviewer, req.CorrectedDate); err != nil {
		writeError(w, http.StatusNotFound, "review record not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"record_id": recordID, "status": "reviewed"}, s.logger)
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
			metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, duration)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized", zap.NewNop())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string, logger *zap.Logger) {
	writeJSON(w, status, map[string]string{"error": msg}, logger)
}
