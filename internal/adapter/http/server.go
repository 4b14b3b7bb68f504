package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/wx-station-etl/internal/domain"
)

// QueryStore is the read side of the record and stats stores.
type QueryStore interface {
	QueryObservations(ctx context.Context, f domain.ObservationFilter, page domain.Page) ([]domain.Observation, int, error)
	QueryAnnualStats(ctx context.Context, f domain.StatFilter, page domain.Page) ([]domain.AnnualStat, int, error)
}

// PageLimits bounds the page_size query parameter.
type PageLimits struct {
	Default int
	Max     int
}

// Server exposes the query API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	store      QueryStore
	limits     PageLimits
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/weather, /api/weather/stats,
// /healthz, /readyz, and /metrics routes.
func NewServer(addr string, store QueryStore, limits PageLimits, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		limits: limits,
		logger: logger,
	}

	mux.HandleFunc("GET /api/weather", s.handleObservations)
	mux.HandleFunc("GET /api/weather/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
