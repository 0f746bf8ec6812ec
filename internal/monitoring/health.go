// Package monitoring wires the relay's liveness and readiness checks.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/orchestrate_relay/pkg/health"
	"github.com/lewisedginton/orchestrate_relay/pkg/health/checkers"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// Health endpoint paths.
const (
	HealthPath    = "/health"
	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)

var errNoAPIKey = errors.New("IBM_API_KEY is not set")

// HealthMonitor manages health checks and monitoring endpoints for the relay
type HealthMonitor struct {
	checker   *health.Checker
	logger    logger.Logger
	startTime time.Time
}

// Config holds configuration for the health monitor
type Config struct {
	Logger logger.Logger

	// APIKeyConfigured feeds the credentials readiness check.
	APIKeyConfigured bool

	// IAMURL and AgentURL are probed when CheckUpstream is set.
	CheckUpstream bool
	IAMURL        string
	AgentURL      string
	Client        *http.Client // optional client for upstream probes

	Timeout          time.Duration // per-check timeout
	FailureThreshold int           // consecutive failures before reporting unhealthy
}

// NewHealthMonitor creates a new health monitor with configured checks
func NewHealthMonitor(cfg Config) *HealthMonitor {
	checker := health.New(
		health.WithLogger(cfg.Logger),
		health.WithTimeout(cfg.Timeout),
		health.WithFailureThreshold(cfg.FailureThreshold),
	)

	checker.AddLivenessCheck(health.NewCheckFunc("process", func(context.Context) error {
		return nil
	}))

	apiKeyConfigured := cfg.APIKeyConfigured
	checker.AddReadinessCheck(health.NewCheckFunc("credentials", func(context.Context) error {
		if !apiKeyConfigured {
			return errNoAPIKey
		}
		return nil
	}))

	if cfg.CheckUpstream {
		client := cfg.Client
		if client == nil {
			client = &http.Client{Timeout: 10 * time.Second}
		}
		if cfg.IAMURL != "" {
			checker.AddReadinessCheck(checkers.NewHTTPCheckerWithClient(cfg.IAMURL, "iam", client))
		}
		if cfg.AgentURL != "" {
			checker.AddReadinessCheck(checkers.NewHTTPCheckerWithClient(cfg.AgentURL, "agent", client))
		}
	}

	return &HealthMonitor{
		checker:   checker,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}
}

// Uptime reports how long the monitor has existed.
func (hm *HealthMonitor) Uptime() time.Duration {
	return time.Since(hm.startTime)
}

// RegisterRoutes mounts the health endpoints on r.
func (hm *HealthMonitor) RegisterRoutes(r chi.Router) {
	r.Get(HealthPath, hm.checker.HealthHandler())
	r.Get(LivenessPath, hm.checker.LivenessHandler())
	r.Get(ReadinessPath, hm.checker.ReadinessHandler())
}

// LogStartupReadiness runs the readiness checks once and logs the result.
func (hm *HealthMonitor) LogStartupReadiness(ctx context.Context) {
	status, err := hm.checker.CheckReadiness(ctx)
	if err != nil {
		hm.logger.Warn("Relay is not ready", logger.ErrorField(err))
		return
	}
	hm.logger.Info("Relay is ready", logger.IntField("checks", len(status.Checks)))
}
