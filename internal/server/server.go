// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ricesearch/cisi-search/internal/bus"
	"github.com/ricesearch/cisi-search/internal/config"
	"github.com/ricesearch/cisi-search/internal/elastic"
	"github.com/ricesearch/cisi-search/internal/evaluation"
	"github.com/ricesearch/cisi-search/internal/metrics"
	"github.com/ricesearch/cisi-search/internal/pkg/logger"
	"github.com/ricesearch/cisi-search/internal/pkg/middleware"
	"github.com/ricesearch/cisi-search/internal/resilience"
	"github.com/ricesearch/cisi-search/internal/search"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server
	handler    http.Handler

	// Services
	backend     search.Backend
	bus         bus.Bus
	metrics     *metrics.Metrics
	rateLimiter *middleware.RateLimiter

	// Handlers
	searchHandler *search.Handler
	healthHandler *search.HealthHandler
	evalHandler   *evaluation.Handler

	cancelSubs context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. evaluate_all runs the whole
	// query set, so this has to cover a full evaluation.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration

	// MetricsPath is where Prometheus metrics are served. Empty disables
	// the endpoint.
	MetricsPath string

	// RateLimit is requests per second per client. Zero disables limiting.
	RateLimit int

	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string

	// TopicPrefix prefixes evaluation event topics.
	TopicPrefix string
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// ConfigFrom builds a server config from the application config.
func ConfigFrom(appCfg *config.Config, version string) Config {
	cfg := Config{
		Host:            appCfg.Host,
		Port:            appCfg.Port,
		Version:         version,
		ReadTimeout:     appCfg.Server.ReadTimeout,
		WriteTimeout:    appCfg.Server.WriteTimeout,
		ShutdownTimeout: appCfg.Server.ShutdownTimeout,
		RateLimit:       appCfg.Security.RateLimit,
		CORSOrigins:     appCfg.CORSOrigins(),
		TopicPrefix:     appCfg.Bus.TopicPrefix,
	}
	if appCfg.Observability.MetricsEnabled {
		cfg.MetricsPath = appCfg.Observability.MetricsPath
	}
	return cfg
}

// Deps are the services the server routes to. New builds them from the
// application config; tests supply their own.
type Deps struct {
	Backend search.Backend
	Source  evaluation.CollectionSource
	Bus     bus.Bus
	Metrics *metrics.Metrics
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg *config.Config, log *logger.Logger) (*Server, error) {
	var m *metrics.Metrics
	if cfg.MetricsPath != "" {
		m = metrics.New()
	}

	// Elasticsearch client behind retry and circuit breaker
	exec := resilience.NewExecutor(resilience.ConfigFrom(appCfg.Resilience), log)
	esOpts := []elastic.Option{elastic.WithExecutor(exec)}
	if m != nil {
		esOpts = append(esOpts, elastic.WithRecorder(m))
	}
	es, err := elastic.NewClient(elastic.ConfigFrom(appCfg), log, esOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	// Initialize event bus
	b, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	if m != nil {
		b = bus.NewInstrumentedBus(b, m)
	}

	return NewWithDeps(cfg, appCfg, log, Deps{
		Backend: es,
		Source:  CachedCollection(appCfg.Corpus, log),
		Bus:     b,
		Metrics: m,
	}), nil
}

// NewWithDeps creates a server around already constructed services.
func NewWithDeps(cfg Config, appCfg *config.Config, log *logger.Logger, deps Deps) *Server {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		backend: deps.Backend,
		bus:     deps.Bus,
		metrics: deps.Metrics,
	}

	svc := search.NewService(deps.Backend, log, search.ConfigFrom(appCfg))
	s.searchHandler = search.NewHandler(svc)
	s.healthHandler = search.NewHealthHandler(search.NewHealthChecker(deps.Backend), cfg.Version)

	var evalOpts []evaluation.Option
	if deps.Bus != nil {
		evalOpts = append(evalOpts, evaluation.WithBus(deps.Bus, cfg.TopicPrefix))
	}
	if deps.Metrics != nil {
		evalOpts = append(evalOpts, evaluation.WithRecorder(deps.Metrics))
	}
	s.evalHandler = evaluation.NewHandler(deps.Backend, deps.Source, log,
		evaluation.OptionsFrom(appCfg.Evaluation), evalOpts...)

	if cfg.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(cfg.RateLimit),
		})
	}

	s.handler = s.setupRoutes()
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start verifies the backend is reachable, subscribes the event log and
// serves HTTP until Stop is called. An unreachable backend is fatal.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}

	if p, ok := s.backend.(search.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := p.Ping(pingCtx)
		cancel()
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("search backend unreachable: %w", err)
		}
	}

	if s.bus != nil {
		subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := bus.SubscribeLogging(subCtx, s.bus, s.cfg.TopicPrefix, s.log.WithComponent("events")); err != nil {
			s.log.Warn("Event log subscription failed", "error", err)
		}
		s.cancelSubs = cancel
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.started = true
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.cancelSubs != nil {
		s.cancelSubs()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.log.Warn("Event bus close error", "error", err)
		}
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes and the middleware chain. The
// metrics middleware wraps the mux directly so it sees the matched pattern.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	s.healthHandler.RegisterRoutes(mux)
	s.searchHandler.RegisterRoutes(mux)
	s.evalHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	if s.metrics != nil {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
		handler = metrics.HTTPMiddleware(s.metrics, mux)
	}

	chain := []func(http.Handler) http.Handler{
		middleware.Recover(s.log),
		middleware.CORS(s.cfg.CORSOrigins),
	}
	if s.rateLimiter != nil {
		chain = append(chain, s.rateLimiter.Middleware)
	}
	chain = append(chain, middleware.RequestLogger(s.log))

	return middleware.Chain(handler, chain...)
}

// Health returns whether the server is serving.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
