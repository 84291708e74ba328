// Package api exposes the claim lifecycle over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/claimdesk/claimdesk/internal/config"
	"github.com/claimdesk/claimdesk/internal/metrics"
	"github.com/claimdesk/claimdesk/internal/service"
)

// Server hosts the HTTP handlers for claimdesk.
type Server struct {
	cfg      *config.Config
	svc      *service.Service
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	validate *validator.Validate
	server   *http.Server
	once     sync.Once
}

// New constructs a Server. metrics may be nil when no collector is wanted
// (tests).
func New(cfg *config.Config, svc *service.Service, logger *zap.SugaredLogger, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		logger:   logger,
		metrics:  m,
		validate: validator.New(),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.withLogging)
	if s.metrics != nil {
		r.Use(s.withMetrics)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/report", func(r chi.Router) {
		r.Post("/create", s.handleCreate)
		r.Get("/get", s.handleGet)
		r.Get("/list", s.handleList)
		r.Post("/update", s.handleUpdate)
		r.Post("/upload", s.handleUpload)
		r.Get("/file-url", s.handleFileURL)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Router(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Infow("api listening", "addr", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorPayload is the structured failure body: a human message plus a short
// machine-readable hint.
type errorPayload struct {
	Error string `json:"error"`
	Hint  string `json:"hint"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message, hint string) {
	respondJSON(w, status, errorPayload{Error: message, Hint: hint})
}

// respondServiceError maps the service taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an upstream failure; its message is passed through
// for diagnostics, never a stack trace.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, upstreamHint string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", "not_found")
	case errors.Is(err, service.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, service.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge,
			"file too large (> "+strconv.FormatInt(s.cfg.MaxUploadMB, 10)+" MB)", "payload_too_large")
	case errors.Is(err, service.ErrBadTransition):
		respondError(w, http.StatusBadRequest, "status transition not allowed", "bad_transition")
	case errors.Is(err, service.ErrEmptyPatch):
		respondError(w, http.StatusBadRequest, "patch is empty", "empty_patch")
	default:
		s.logger.Errorw("upstream failure", "hint", upstreamHint, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error(), upstreamHint)
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.RequestsInFlight.Inc()
		defer s.metrics.RequestsInFlight.Dec()
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		s.metrics.RequestCounter.WithLabelValues(pattern, r.Method, strconv.Itoa(ww.Status())).Inc()
		s.metrics.RequestDuration.WithLabelValues(pattern, r.Method).Observe(time.Since(start).Seconds())
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
