package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CommonConfig holds settings shared by every service binary.
type CommonConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"orchestrate-relay"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" yaml:"log_level" default:"info"`

	// LogFormat is json or text
	LogFormat string `env:"LOG_FORMAT" yaml:"log_format" default:"json"`
}

// Validate checks log level and format.
func (c CommonConfig) Validate() error {
	var result error
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.LogFormat))
	}
	return result
}
