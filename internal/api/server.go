// Package api provides the HTTP surface of the voicemap daemon.
package api

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speechviz/voicemap/internal/api/middleware"
	"github.com/speechviz/voicemap/internal/config"
	"github.com/speechviz/voicemap/internal/health"
	"github.com/speechviz/voicemap/internal/projection"
	"github.com/speechviz/voicemap/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	mu         sync.RWMutex
	refreshing atomic.Bool // serialize refreshes via atomic flag

	cfg    config.AppConfig
	status projection.Status
	doc    *projection.Document

	healthManager *health.Manager
	runs          *store.Store // optional run history
	startTime     time.Time

	// refreshFn allows tests to stub the refresh operation.
	refreshFn func(context.Context, projection.Config, projection.Recorder) (*projection.Document, *projection.Status, error)
}

// Option allows functional configuration of the Server.
type Option func(*Server)

// WithRefreshFunc overrides the refresh implementation (for tests).
func WithRefreshFunc(f func(context.Context, projection.Config, projection.Recorder) (*projection.Document, *projection.Status, error)) Option {
	return func(s *Server) {
		s.refreshFn = f
	}
}

// New creates the API server. runs may be nil when run history is disabled.
func New(cfg config.AppConfig, runs *store.Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		runs:      runs,
		startTime: time.Now(),
		refreshFn: projection.Refresh,
	}

	s.healthManager = health.NewManager(cfg.Version)
	if cfg.RatingsPath != "" {
		s.healthManager.RegisterChecker(health.NewFileChecker("ratings", cfg.RatingsPath))
	}
	s.healthManager.RegisterChecker(health.NewFileChecker("projections", filepath.Join(cfg.DataDir, projection.ArtifactName)))
	if runs != nil {
		s.healthManager.RegisterChecker(health.NewPingChecker("store", runs.Ping))
	}

	// Load a previously written artifact so restarts serve immediately.
	if doc, err := projection.ReadDocument(filepath.Join(cfg.DataDir, projection.ArtifactName)); err == nil {
		s.doc = doc
		s.status = projection.Status{LastRun: doc.GeneratedAt, Points: len(doc.Labels())}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplyStatus installs the result of an externally run refresh (e.g. the
// initial refresh at startup or a watcher-triggered recompute).
func (s *Server) ApplyStatus(doc *projection.Document, status *projection.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc != nil {
		s.doc = doc
	}
	if status != nil {
		s.status = *status
	}
}

// HealthManager exposes the health manager for startup wiring.
func (s *Server) HealthManager() *health.Manager {
	return s.healthManager
}

// Handler builds the chi router with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		EnableRateLimit:       s.cfg.RateLimitEnabled,
		RateLimitRPM:          s.cfg.RateLimitRPM,
	})

	r.Get("/", s.handleViewer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/projections", s.handleProjections)
		r.Get("/projections/{group}", s.handleProjectionGroup)
		r.Get("/points/{label}", s.handlePoint)
		r.Get("/runs", s.handleRuns)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RefreshRateLimit())
			r.Use(s.authMiddleware)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	if s.cfg.MetricsEnabled && s.cfg.MetricsAddr == "" {
		// No dedicated metrics listener configured; expose on the API port.
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	r.Handle("/audio/*", http.StripPrefix("/audio/", s.secureFileServer()))

	return r
}

// document returns the current projections document, or nil before the
// first successful refresh.
func (s *Server) document() *projection.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}
