// Package api exposes the HTTP interface for the feed polling service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amaudy/feedhq/internal/config"
	"github.com/amaudy/feedhq/internal/feed"
	"github.com/amaudy/feedhq/internal/metrics"
)

const maxPushBodyBytes = 5 << 20

// Registry is the poll engine surface the server exposes.
type Registry interface {
	Poll(ctx context.Context, url string, useValidators bool) error
	Unmute(ctx context.Context, url string) error
	SourceStatus(ctx context.Context, url string) (feed.Status, error)
}

// Pusher applies an inbound hub notification to subscribers.
type Pusher interface {
	ApplyPush(ctx context.Context, doc feed.Document) (int, error)
}

// Server wires HTTP handlers to the registry, parser, and fan-out.
type Server struct {
	router   chi.Router
	registry Registry
	parser   feed.Parser
	pusher   Pusher
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	registry Registry,
	parser feed.Parser,
	pusher Pusher,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		parser:   parser,
		pusher:   pusher,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/push", s.handlePush)
		r.Post("/poll", s.handlePoll)
		r.Get("/sources", s.getSourceStatus)
		r.Post("/sources/unmute", s.unmuteSource)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handlePush accepts a raw feed document pushed by a hub, parses it, and
// fans the entries out to subscribers of the document's self link.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPushBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}
	doc := s.parser.Parse(body)
	if doc.SelfURL == "" {
		writeError(w, http.StatusUnprocessableEntity, "document has no self link")
		return
	}
	created, err := s.pusher.ApplyPush(r.Context(), doc)
	if err != nil {
		s.logger.Warn("push fan-out failed", zap.String("self_url", doc.SelfURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "fan-out failed")
		return
	}
	metrics.ObservePushNotification()
	writeJSON(w, http.StatusOK, map[string]any{
		"self_url":        doc.SelfURL,
		"entries_created": created,
	})
}

type pollRequest struct {
	URL           string `json:"url"`
	UseValidators *bool  `json:"use_validators"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	var req pollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	useValidators := true
	if req.UseValidators != nil {
		useValidators = *req.UseValidators
	}
	if err := s.registry.Poll(r.Context(), req.URL, useValidators); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"url": req.URL})
}

func (s *Server) getSourceStatus(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	status, err := s.registry.SourceStatus(r.Context(), url)
	if err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type unmuteRequest struct {
	URL string `json:"url"`
}

func (s *Server) unmuteSource(w http.ResponseWriter, r *http.Request) {
	var req unmuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	if err := s.registry.Unmute(r.Context(), req.URL); err != nil {
		if errors.Is(err, feed.ErrNotFound) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": req.URL, "status": "unmuted"})
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
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
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

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
