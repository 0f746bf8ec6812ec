package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// HTTPServerConfig holds HTTP server settings
type HTTPServerConfig struct {
	Port int `env:"HTTP_PORT" yaml:"http_port" default:"8000"`

	ReadTimeoutSeconds int `env:"HTTP_READ_TIMEOUT_SECONDS" yaml:"read_timeout_seconds" default:"15"`

	// WriteTimeoutSeconds must cover the slowest upstream round trip.
	WriteTimeoutSeconds int `env:"HTTP_WRITE_TIMEOUT_SECONDS" yaml:"write_timeout_seconds" default:"75"`

	IdleTimeoutSeconds int `env:"HTTP_IDLE_TIMEOUT_SECONDS" yaml:"idle_timeout_seconds" default:"60"`

	MaxHeaderBytes int `env:"HTTP_MAX_HEADER_BYTES" yaml:"max_header_bytes" default:"1048576"`

	// PathPrefix is stripped from incoming paths when the relay sits behind a
	// path-routing proxy, e.g. "/orchestrate".
	PathPrefix string `env:"HTTP_PATH_PREFIX" yaml:"path_prefix"`
}

// Validate checks HTTPServerConfig for valid port range and timeouts.
func (h HTTPServerConfig) Validate() error {
	var result error
	if h.Port < 1 || h.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("http port must be between 1-65535, got %d", h.Port))
	}
	if h.ReadTimeoutSeconds <= 0 || h.WriteTimeoutSeconds <= 0 {
		result = multierror.Append(result, fmt.Errorf("http read and write timeouts must be positive"))
	}
	return result
}

// ReadTimeout returns the ReadTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the WriteTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) WriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the IdleTimeoutSeconds as a time.Duration
func (h HTTPServerConfig) IdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeoutSeconds) * time.Second
}
