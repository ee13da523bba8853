package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/flood-risk-engine/internal/distribution"
	"github.com/couchcryptid/flood-risk-engine/internal/domain"
	"github.com/couchcryptid/flood-risk-engine/internal/observability"
	"github.com/couchcryptid/flood-risk-engine/internal/pipeline"
	"github.com/couchcryptid/flood-risk-engine/internal/zones"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// AllReady is ready when every checker is.
type AllReady []ReadinessChecker

func (a AllReady) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range a {
		if c == nil {
			continue
		}
		errs = append(errs, c.CheckReadiness(ctx))
	}
	return errors.Join(errs...)
}

// ZoneCatalogue lists the flood zones.
type ZoneCatalogue interface {
	All() []domain.FloodZone
	Stats() zones.Stats
}

// ReportSubmitter accepts citizen reports.
type ReportSubmitter interface {
	Submit(ctx context.Context, in pipeline.ReportInput) (domain.Assessment, error)
}

// API wires the read API, report intake and real-time sessions. A nil
// Reports disables POST /api/reports.
type API struct {
	Snapshots distribution.Source
	Zones     ZoneCatalogue
	Reports   ReportSubmitter
	Bounds    domain.BoundingBox
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
}

// Server exposes health, readiness, metrics, the flood API and the websocket
// endpoint.
type Server struct {
	httpServer *http.Server
	api        API
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	// sessions is cancelled on Shutdown; hijacked websocket connections are
	// not tracked by http.Server.
	sessions      context.Context
	closeSessions context.CancelFunc
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, the
// /api routes and /ws.
func NewServer(addr string, ready ReadinessChecker, api API, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	if api.Clock == nil {
		api.Clock = clockwork.NewRealClock()
	}

	sessions, closeSessions := context.WithCancel(context.Background())
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		api: api,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:        logger,
		sessions:      sessions,
		closeSessions: closeSessions,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/flood/{stream}", s.handleFlood)
	mux.HandleFunc("GET /api/zones", s.handleZones)
	if api.Reports != nil {
		mux.HandleFunc("POST /api/reports", s.handleReport)
	}
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown closes open websocket sessions and gracefully drains connections
// within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeSessions()
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
