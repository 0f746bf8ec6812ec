// Package config defines the relay's application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/orchestrate_relay/internal/iam"
	"github.com/lewisedginton/orchestrate_relay/internal/orchestrate"
	pkgconfig "github.com/lewisedginton/orchestrate_relay/pkg/config"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// AppConfig holds all application configuration. It is built once at
// startup and handed to the components that need it.
type AppConfig struct {
	Common  pkgconfig.CommonConfig     `yaml:"common,inline"`
	HTTP    pkgconfig.HTTPServerConfig `yaml:"http,inline"`
	Metrics pkgconfig.MetricsConfig    `yaml:"metrics,inline"`

	IBM    IBMConfig    `yaml:"ibm,inline"`
	Agent  AgentConfig  `yaml:"agent,inline"`
	Health HealthConfig `yaml:"health,inline"`
}

// Load reads path (optional) and then environment variables into a
// validated AppConfig.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := pkgconfig.GetConfig(cfg, path, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section. A missing IBM_API_KEY is not an error here:
// chat requests report it instead.
func (c *AppConfig) Validate() error {
	var result error
	for _, v := range []pkgconfig.Validator{c.Common, c.HTTP, c.Metrics, c.IBM, c.Agent, c.Health} {
		if err := v.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if budget := c.RequestBudget(); c.HTTP.WriteTimeoutSeconds > 0 && c.HTTP.WriteTimeout() < budget {
		result = multierror.Append(result, fmt.Errorf(
			"write_timeout_seconds (%s) must cover iam_timeout + agent_timeout + %s (%s)",
			c.HTTP.WriteTimeout(), requestSlack, budget))
	}
	return result
}

// requestSlack is headroom left after the upstream budgets so their timeouts
// are reported before the router or the write deadline cut the request.
const requestSlack = 5 * time.Second

// RequestBudget is the longest a chat request may take: the token exchange,
// the agent call and some headroom.
func (c *AppConfig) RequestBudget() time.Duration {
	return c.IBM.IAMTimeout + c.Agent.Timeout + requestSlack
}

// GetLogLevel returns the parsed logger level.
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Common.LogLevel)
}

// LoggerConfig returns the settings for the service logger.
func (c *AppConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:   c.GetLogLevel(),
		Format:  c.Common.LogFormat,
		Service: c.Common.ServiceName,
	}
}

// IAMConfig returns the token exchange settings.
func (c *AppConfig) IAMConfig() iam.Config {
	return iam.Config{
		APIKey:  c.IBM.APIKey,
		URL:     c.IBM.IAMURL,
		Timeout: c.IBM.IAMTimeout,
	}
}

// OrchestrateConfig returns the agent settings.
func (c *AppConfig) OrchestrateConfig() (orchestrate.Config, error) {
	version, err := orchestrate.ParseVersion(c.Agent.APIVersion)
	if err != nil {
		return orchestrate.Config{}, err
	}
	return orchestrate.Config{
		Version:       version,
		InstanceID:    c.Agent.InstanceID,
		Region:        c.Agent.Region,
		AgentID:       c.Agent.AgentID,
		EnvironmentID: c.Agent.EnvironmentID,
		BaseURL:       c.Agent.BaseURL,
		ChatPath:      c.Agent.ChatPath,
		Timeouts: orchestrate.Timeouts{
			Connect: c.Agent.ConnectTimeout,
			Read:    c.Agent.ReadTimeout,
			Total:   c.Agent.Timeout,
		},
	}, nil
}

// AgentEndpoint resolves the chat URL the relay will call.
func (c *AppConfig) AgentEndpoint() (string, error) {
	oc, err := c.OrchestrateConfig()
	if err != nil {
		return "", err
	}
	endpoint, err := oc.Endpoint()
	if err != nil {
		return "", fmt.Errorf("agent endpoint: %w", err)
	}
	return endpoint, nil
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	endpoint, err := c.AgentEndpoint()
	if err != nil {
		endpoint = "<unresolved: " + err.Error() + ">"
	}
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.Common.ServiceName),
		logger.IntField("http_port", c.HTTP.Port),
		logger.StringField("path_prefix", c.HTTP.PathPrefix),
		logger.StringField("log_level", c.Common.LogLevel),
		logger.StringField("log_format", c.Common.LogFormat),
		logger.BoolField("ibm_api_key_configured", c.IBM.APIKey != ""),
		logger.StringField("iam_url", c.IBM.IAMURL),
		logger.DurationField("iam_timeout", c.IBM.IAMTimeout),
		logger.StringField("agent_api_version", c.Agent.APIVersion),
		logger.StringField("agent_endpoint", endpoint),
		logger.DurationField("agent_connect_timeout", c.Agent.ConnectTimeout),
		logger.DurationField("agent_read_timeout", c.Agent.ReadTimeout),
		logger.DurationField("agent_timeout", c.Agent.Timeout),
		logger.BoolField("http_metrics_enabled", c.Metrics.EnableHTTPMetrics),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
		logger.BoolField("health_check_upstream", c.Health.CheckUpstream),
	)
	if c.IBM.APIKey == "" {
		log.Warn("IBM_API_KEY is not set; chat requests will fail until it is configured")
	}
}
