// Package dashboard exposes the read-only analytics HTTP API over the silver
// store.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tjma/job-market-pipeline/internal/metrics"
)

// Server wires HTTP handlers to the dashboard repository.
type Server struct {
	router chi.Router
	repo   *Repository
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(repo *Repository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{repo: repo, logger: logger}

	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1/dashboard", func(r chi.Router) {
		r.Get("/trend", s.trend)
		r.Get("/top-skills", s.topSkills)
		r.Get("/regions", s.regions)
		r.Get("/industries", s.industries)
		r.Get("/salary-distribution", s.salaryDistribution)
		r.Get("/total", s.total)
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

func (s *Server) trend(w http.ResponseWriter, r *http.Request) {
	points, err := s.repo.Trend(r.Context(), nameParam(r))
	if err != nil {
		s.queryError(w, r, err)
		return
	}
	if points == nil {
		points = []TrendPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) topSkills(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be in 1..100")
			return
		}
		limit = n
	}
	s.labelValues(w, r, func(ctx context.Context, name string) ([]LabelValue, error) {
		return s.repo.TopSkills(ctx, name, limit)
	})
}

func (s *Server) regions(w http.ResponseWriter, r *http.Request) {
	s.labelValues(w, r, s.repo.Regions)
}

func (s *Server) industries(w http.ResponseWriter, r *http.Request) {
	s.labelValues(w, r, s.repo.Industries)
}

func (s *Server) salaryDistribution(w http.ResponseWriter, r *http.Request) {
	s.labelValues(w, r, s.repo.SalaryDistribution)
}

func (s *Server) total(w http.ResponseWriter, r *http.Request) {
	total, err := s.repo.TotalJobs(r.Context(), nameParam(r))
	if err != nil {
		s.queryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

func (s *Server) labelValues(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) ([]LabelValue, error)) {
	out, err := fn(r.Context(), nameParam(r))
	if err != nil {
		s.queryError(w, r, err)
		return
	}
	if out == nil {
		out = []LabelValue{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) queryError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("dashboard query failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "query failed")
}

func nameParam(r *http.Request) string {
	return r.URL.Query().Get("name")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type requestIDKey struct{}

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
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", duration.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
