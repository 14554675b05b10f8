// Package server exposes federated search over HTTP. Search results stream to
// the client as Server-Sent Events, one event per settled group.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-cli/internal/catalog"
	"github.com/sells-group/parcel-cli/internal/monitoring"
	"github.com/sells-group/parcel-cli/internal/resilience"
	"github.com/sells-group/parcel-cli/internal/session"
	"github.com/sells-group/parcel-cli/internal/store"
	"github.com/sells-group/parcel-cli/pkg/appraisal"
)

// ConsumerHeader identifies the caller whose previous search a new one
// supersedes.
const ConsumerHeader = "X-Consumer-ID"

// Options configures the HTTP surface.
type Options struct {
	Port            int
	RateLimitPerMin int
	CORSOrigins     []string
	TaxYear         int
}

// Deps are the collaborators the handlers call. Store, Details and Breakers
// are optional; routes that need a missing one answer 503.
type Deps struct {
	Catalog  *catalog.Catalog
	Manager  *session.Manager
	Store    store.Store
	Details  appraisal.Client
	Breakers *resilience.Breakers
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API.
type Server struct {
	deps      Deps
	opts      Options
	recorder  *store.Recorder
	collector *monitoring.Collector
	log       *zap.Logger
}

// New creates a Server. When a store is configured every search started
// through the API is recorded in history.
func New(deps Deps, opts Options) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		deps: deps,
		opts: opts,
		log:  zap.L().With(zap.String("component", "server")),
	}
	if deps.Store != nil {
		s.recorder = store.NewRecorder(deps.Store)
		s.collector = monitoring.NewCollector(deps.Store, deps.Breakers)
		deps.Manager.BeforeRun(s.recorder.Begin)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", ConsumerHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if s.opts.RateLimitPerMin > 0 {
			r.Use(httprate.Limit(s.opts.RateLimitPerMin, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}

		r.Get("/search", s.handleSearch)
		r.Get("/jurisdictions", s.handleJurisdictions)
		r.Get("/jurisdictions/{jurisdiction}/properties/{propertyID}", s.handleDetails)
		r.Get("/searches", s.handleListSearches)
		r.Get("/searches/stats", s.handleStats)
		r.Get("/searches/{id}", s.handleGetSearch)
		r.Get("/searches/{id}/export.xlsx", s.handleExport)
	})

	return r
}

// Run serves until ctx is cancelled, then cancels running searches and shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.Int("port", s.opts.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err := s.deps.Manager.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("searches did not finish before shutdown", zap.Error(err))
	}
	return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
}
