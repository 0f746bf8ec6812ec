package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HealthConfig holds health check configuration
type HealthConfig struct {
	Timeout          time.Duration `env:"HEALTH_TIMEOUT" yaml:"health_timeout" default:"5s"`
	FailureThreshold int           `env:"HEALTH_FAILURE_THRESHOLD" yaml:"health_failure_threshold" default:"3"`

	// CheckUpstream adds reachability probes of the identity and agent hosts
	// to readiness.
	CheckUpstream bool `env:"HEALTH_CHECK_UPSTREAM" yaml:"health_check_upstream" default:"false"`
}

// Validate checks timeout and threshold.
func (c HealthConfig) Validate() error {
	var result error
	if c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("health_timeout must be greater than 0"))
	}
	if c.FailureThreshold < 1 {
		result = multierror.Append(result, fmt.Errorf("health_failure_threshold must be at least 1, got %d", c.FailureThreshold))
	}
	return result
}
