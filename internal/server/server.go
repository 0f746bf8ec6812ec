// Package server assembles the relay's HTTP server and manages its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/orchestrate_relay/internal/api"
	appconfig "github.com/lewisedginton/orchestrate_relay/internal/config"
	"github.com/lewisedginton/orchestrate_relay/internal/iam"
	"github.com/lewisedginton/orchestrate_relay/internal/middleware"
	"github.com/lewisedginton/orchestrate_relay/internal/monitoring"
	"github.com/lewisedginton/orchestrate_relay/internal/orchestrate"
	"github.com/lewisedginton/orchestrate_relay/pkg/httpmiddleware"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/lewisedginton/orchestrate_relay/pkg/metrics"
	"github.com/lewisedginton/orchestrate_relay/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

// Server encapsulates the relay components and lifecycle management
type Server struct {
	cfg     *appconfig.AppConfig
	log     logger.Logger
	metrics *metrics.Metrics
	health  *monitoring.HealthMonitor
	relay   *orchestrate.Client
	router  chi.Router
	http    *http.Server
}

// New builds every component from cfg. Nothing is started.
func New(cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, log),
	}

	var err error
	s.relay, err = NewRelay(cfg, log, s.metrics)
	if err != nil {
		return nil, err
	}

	s.health = monitoring.NewHealthMonitor(monitoring.Config{
		Logger:           log,
		APIKeyConfigured: cfg.IBM.APIKey != "",
		CheckUpstream:    cfg.Health.CheckUpstream,
		IAMURL:           cfg.IBM.IAMURL,
		AgentURL:         s.relay.Endpoint(),
		Timeout:          cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
	})

	s.router = s.createRouter()
	s.http = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.HTTP.ReadTimeout(),
		WriteTimeout:   cfg.HTTP.WriteTimeout(),
		IdleTimeout:    cfg.HTTP.IdleTimeout(),
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	log.Info("Relay server initialized",
		logger.IntField("http_port", cfg.HTTP.Port),
		logger.StringField("agent_endpoint", s.relay.Endpoint()))
	return s, nil
}

// NewRelay builds the token provider and agent client from cfg. Both share
// one outbound HTTP client. rec may be nil.
func NewRelay(cfg *appconfig.AppConfig, log logger.Logger, rec *metrics.Metrics) (*orchestrate.Client, error) {
	oc, err := cfg.OrchestrateConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}
	httpClient := orchestrate.NewHTTPClient(oc.Timeouts)

	iamOpts := []iam.Option{iam.WithHTTPClient(httpClient)}
	relayOpts := []orchestrate.Option{orchestrate.WithHTTPClient(httpClient)}
	if rec != nil {
		iamOpts = append(iamOpts, iam.WithRecorder(rec))
		relayOpts = append(relayOpts, orchestrate.WithRecorder(rec))
	}

	tokens := iam.NewProvider(cfg.IAMConfig(), log, iamOpts...)
	client, err := orchestrate.NewClient(oc, tokens, log, relayOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent client: %w", err)
	}
	return client, nil
}

// createRouter sets up all routes and middleware
func (s *Server) createRouter() chi.Router {
	r := chi.NewRouter()

	mw := httpmiddleware.DefaultConfig()
	mw.Logger = s.log
	mw.EnableLogging = true
	mw.Metrics = s.metrics.HTTPMiddleware()
	mw.Recoverer = middleware.Recovery(middleware.DefaultRecoveryConfig(s.log))
	mw.Security = httpmiddleware.DefaultSecurityOptions(false)
	mw.StripPrefix = s.cfg.HTTP.PathPrefix
	mw.EnableStripPrefix = s.cfg.HTTP.PathPrefix != ""
	mw.Timeout = s.cfg.RequestBudget()
	httpmiddleware.ApplyToRouter(r, mw)

	r.Use(middleware.ErrorHandler(middleware.RecoveryConfig{Logger: s.log}))

	s.health.RegisterRoutes(r)
	api.NewHandler(s.relay, s.log).RegisterRoutes(r)

	return r
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics registry wrapper.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Run serves until ctx is cancelled or a listener fails, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpErr := make(chan error, 1)
	go func() {
		defer close(httpErr)
		s.log.Info("Starting HTTP server", logger.StringField("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("http listener: %w", err)
		}
	}()

	chans := []<-chan error{httpErr}
	if s.cfg.Metrics.ExposeMetrics {
		chans = append(chans, s.metrics.Listen(s.cfg.Metrics.Port))
	}
	errs := utils.MergeErrorChans(chans...)

	s.health.LogStartupReadiness(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutdown requested")
	case err, ok := <-errs:
		if ok && err != nil {
			s.log.Error("Fatal server error occurred", logger.ErrorField(err))
			runErr = err
		}
	}

	if err := s.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result error
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Error("Error during graceful shutdown", logger.ErrorField(err))
		result = fmt.Errorf("server shutdown error: %w", err)
	}
	if err := s.metrics.Shutdown(ctx); err != nil {
		s.log.Error("Error stopping metrics listener", logger.ErrorField(err))
	}
	s.log.Info("Server exited gracefully")
	return result
}
