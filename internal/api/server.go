package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/breaker"
	"github.com/JakeFAU/contact-harvester/internal/harvest"
	"github.com/JakeFAU/contact-harvester/internal/metrics"
)

// Store is the read side of the record store the API reports on.
type Store interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (harvest.Stats, error)
	List(ctx context.Context, limit int) ([]harvest.BusinessRecord, int64, error)
}

// BreakerView exposes breaker state. *breaker.Breaker satisfies it.
type BreakerView interface {
	Snapshot() []breaker.DomainState
}

// DryRunner harvests one website without touching the store.
type DryRunner interface {
	DryRun(ctx context.Context, website, businessName string) (harvest.Result, error)
}

// Options carries the optional collaborators and knobs.
type Options struct {
	Breaker        BreakerView
	DryRun         DryRunner
	APIKey         string
	RequestTimeout time.Duration
}

const (
	defaultListLimit      = 10
	maxListLimit          = 100
	defaultRequestTimeout = 120 * time.Second
)

// Server wires HTTP handlers to the record store and harvester.
type Server struct {
	router chi.Router
	store  Store
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store Store, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{store: store, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Get("/stats", s.stats)
		r.Get("/records", s.records)
		r.Get("/breaker", s.breakerState)
		r.Post("/harvest/dry-run", s.dryRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

type recordsResponse struct {
	Total   int64                    `json:"total"`
	Records []harvest.BusinessRecord `json:"records"`
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}
	records, total, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("list records failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []harvest.BusinessRecord{}
	}
	s.writeJSON(w, http.StatusOK, recordsResponse{Total: total, Records: records})
}

func (s *Server) breakerState(w http.ResponseWriter, _ *http.Request) {
	domains := []breaker.DomainState{}
	if s.opts.Breaker != nil {
		domains = append(domains, s.opts.Breaker.Snapshot()...)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

type dryRunRequest struct {
	Website      string `json:"website"`
	BusinessName string `json:"business_name"`
}

type dryRunResponse struct {
	harvest.Result
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) dryRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.DryRun == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no renderer configured")
		return
	}
	var req dryRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Website == "" {
		s.writeError(w, http.StatusBadRequest, "website required")
		return
	}
	result, err := s.opts.DryRun.DryRun(r.Context(), req.Website, req.BusinessName)
	if err != nil {
		s.logger.Error("dry run failed", zap.String("website", req.Website), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := dryRunResponse{Result: result, DurationMs: result.Duration.Milliseconds()}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
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
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
					)
					writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSON(zap.NewNop(), w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
