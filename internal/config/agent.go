package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/lewisedginton/orchestrate_relay/internal/orchestrate"
)

// AgentConfig identifies the watsonx Orchestrate agent and bounds calls to it.
type AgentConfig struct {
	APIVersion    string `env:"AGENT_API_VERSION" yaml:"agent_api_version" default:"v2"`
	InstanceID    string `env:"INSTANCE_ID" yaml:"instance_id"`
	Region        string `env:"REGION" yaml:"region" default:"us-south"`
	AgentID       string `env:"AGENT_ID" yaml:"agent_id"`
	EnvironmentID string `env:"AGENT_ENVIRONMENT_ID" yaml:"agent_environment_id"`
	BaseURL       string `env:"BASE_URL" yaml:"base_url"`
	ChatPath      string `env:"AGENT_CHAT_PATH" yaml:"agent_chat_path" default:"/v2/chat"`

	ConnectTimeout time.Duration `env:"AGENT_CONNECT_TIMEOUT" yaml:"agent_connect_timeout" default:"10s"`
	ReadTimeout    time.Duration `env:"AGENT_READ_TIMEOUT" yaml:"agent_read_timeout" default:"50s"`
	Timeout        time.Duration `env:"AGENT_TIMEOUT" yaml:"agent_timeout" default:"60s"`
}

// Validate checks that the agent can be addressed for the chosen version.
func (c AgentConfig) Validate() error {
	var result error

	version, err := orchestrate.ParseVersion(c.APIVersion)
	if err != nil {
		result = multierror.Append(result, err)
	}
	if c.AgentID == "" {
		result = multierror.Append(result, fmt.Errorf("agent_id (AGENT_ID) is required"))
	}
	if c.InstanceID == "" {
		result = multierror.Append(result, fmt.Errorf("instance_id (INSTANCE_ID) is required"))
	}
	if version == orchestrate.V2 && c.BaseURL == "" {
		result = multierror.Append(result, fmt.Errorf("base_url (BASE_URL) is required for agent API v2"))
	}
	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("agent timeouts must be greater than 0"))
	}
	if c.ConnectTimeout > c.Timeout || c.ReadTimeout > c.Timeout {
		result = multierror.Append(result, fmt.Errorf("agent_timeout (%s) must cover connect (%s) and read (%s) timeouts",
			c.Timeout, c.ConnectTimeout, c.ReadTimeout))
	}
	return result
}
