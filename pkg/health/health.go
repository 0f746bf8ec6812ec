// Package health runs liveness and readiness checks with per-check timeouts
// and a consecutive-failure threshold.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// Check is a single named probe. Check returns nil when healthy.
type Check interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to Check.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the name of this check.
func (c *CheckFunc) Name() string { return c.name }

// Check executes the check function.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// CheckResult is the outcome of one check execution.
type CheckResult struct {
	Name    string
	Healthy bool
	Error   string
	Latency time.Duration
}

// Status aggregates the results of a group of checks.
type Status struct {
	Healthy bool
	Checks  []CheckResult
}

// Checker holds liveness and readiness checks.
type Checker struct {
	mu               sync.Mutex
	liveness         []Check
	readiness        []Check
	timeout          time.Duration
	failureThreshold int
	failures         map[string]int
	log              logger.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each individual check. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for check failures.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) { c.log = l }
}

// WithFailureThreshold sets how many consecutive failures a check needs
// before it is reported unhealthy. Default 3.
func WithFailureThreshold(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.failureThreshold = n
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		timeout:          5 * time.Second,
		failureThreshold: 3,
		failures:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddLivenessCheck registers a check deciding whether the process should be restarted.
func (c *Checker) AddLivenessCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveness = append(c.liveness, check)
}

// AddReadinessCheck registers a check deciding whether the process should receive traffic.
func (c *Checker) AddReadinessCheck(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readiness = append(c.readiness, check)
}

// CheckLiveness runs all liveness checks.
func (c *Checker) CheckLiveness(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	checks := append([]Check(nil), c.liveness...)
	c.mu.Unlock()
	return c.run(ctx, checks)
}

// CheckReadiness runs all readiness checks.
func (c *Checker) CheckReadiness(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	checks := append([]Check(nil), c.readiness...)
	c.mu.Unlock()
	return c.run(ctx, checks)
}

// run executes checks concurrently. The error lists the failed check names.
func (c *Checker) run(ctx context.Context, checks []Check) (*Status, error) {
	status := &Status{Healthy: true, Checks: make([]CheckResult, len(checks))}

	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			status.Checks[i] = c.runOne(ctx, check)
		}(i, check)
	}
	wg.Wait()

	var failed []string
	for _, r := range status.Checks {
		if !r.Healthy {
			failed = append(failed, r.Name)
		}
	}
	if len(failed) == 0 {
		return status, nil
	}
	sort.Strings(failed)
	status.Healthy = false
	return status, fmt.Errorf("health checks failed: %v", failed)
}

func (c *Checker) runOne(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Healthy: true, Latency: time.Since(start)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.failures[check.Name()] = 0
		return result
	}

	c.failures[check.Name()]++
	count := c.failures[check.Name()]
	if count < c.failureThreshold {
		if c.log != nil {
			c.log.Debug("Health check failed below threshold",
				logger.StringField("check", check.Name()),
				logger.ErrorField(err),
				logger.IntField("failures", count))
		}
		return result
	}

	result.Healthy = false
	result.Error = err.Error()
	if c.log != nil {
		c.log.Warn("Health check failed",
			logger.StringField("check", check.Name()),
			logger.ErrorField(err),
			logger.IntField("failures", count),
			logger.DurationField("latency", result.Latency))
	}
	return result
}
