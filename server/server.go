// Package server exposes the similarity engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"promptarena/embedding"
	"promptarena/logging"
	"promptarena/metrics"
	"promptarena/similarity"
)

// maxUploadBytes bounds the multipart body of one comparison
const maxUploadBytes = 32 << 20

// Server handles HTTP requests
type Server struct {
	scorer   *similarity.Scorer
	metrics  *metrics.Prometheus
	semantic *embedding.Semantic
}

// NewServer creates a new API server. semantic may be nil, in which case the
// semantic endpoint answers 503.
func NewServer(scorer *similarity.Scorer, m *metrics.Prometheus, semantic *embedding.Semantic) *Server {
	if m == nil {
		m = metrics.NewPrometheusMetrics()
	}
	return &Server{
		scorer:   scorer,
		metrics:  m,
		semantic: semantic,
	}
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Heartbeat("/health"))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", s.handleListMetrics)
		r.Post("/compare", s.handleCompare)
		r.Post("/compare/detailed", s.handleCompareDetailed)
		r.Post("/compare/semantic", s.handleCompareSemantic)
	})

	return r
}

// ListenAndServe serves on addr until ctx is canceled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logging.LogInfo("Listening on %s", addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		l := logging.Logger()
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("bytes", ww.BytesWritten()).
			Msg("request")
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.LogError("Cannot encode response: %v", err)
	}
}
