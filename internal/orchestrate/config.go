package orchestrate

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Version selects the upstream API shape.
type Version string

const (
	// V1 is the legacy region-scoped endpoint with {input, context} payloads.
	V1 Version = "v1"
	// V2 is the base-URL endpoint with typed output.generic items.
	V2 Version = "v2"

	DefaultRegion   = "us-south"
	DefaultChatPath = "/v2/chat"
)

// ParseVersion accepts "v1" or "v2" in any case. Empty means V2.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(V2):
		return V2, nil
	case string(V1):
		return V1, nil
	}
	return "", fmt.Errorf("unsupported agent API version %q (want v1 or v2)", s)
}

// Timeouts bounds one agent call.
type Timeouts struct {
	Connect time.Duration // dial and TLS handshake
	Read    time.Duration // request written until response headers
	Total   time.Duration // whole exchange including the body
}

// DefaultTimeouts is 10s connect, 50s response headers, 60s total.
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: 10 * time.Second, Read: 50 * time.Second, Total: 60 * time.Second}
}

// NewHTTPClient returns a client enforcing t. It is safe to share between
// requests and between the token exchange and agent calls.
func NewHTTPClient(t Timeouts) *http.Client {
	dialer := &net.Dialer{Timeout: t.Connect, KeepAlive: 30 * time.Second}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = t.Connect
	transport.ResponseHeaderTimeout = t.Read

	return &http.Client{Transport: transport, Timeout: t.Total}
}

// Config identifies the target agent.
type Config struct {
	Version       Version
	InstanceID    string
	Region        string
	AgentID       string
	EnvironmentID string

	// BaseURL is required for V2. For V1 it replaces the region-derived host
	// when set.
	BaseURL  string
	ChatPath string

	Timeouts Timeouts
}

// Endpoint resolves the chat URL for the configured version. An empty
// Version resolves as V2.
func (c Config) Endpoint() (string, error) {
	if c.Version == V1 {
		return c.v1Endpoint()
	}
	return c.v2Endpoint()
}

func (c Config) v1Endpoint() (string, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		region := c.Region
		if region == "" {
			region = DefaultRegion
		}
		base = fmt.Sprintf("https://api.%s.watson-orchestrate.ibm.com", region)
	}
	return validURL(fmt.Sprintf("%s/instances/%s/v1/orchestrate/agents/%s/chat",
		base, url.PathEscape(NormalizeInstanceID(c.InstanceID)), url.PathEscape(c.AgentID)))
}

func (c Config) v2Endpoint() (string, error) {
	if c.BaseURL == "" {
		return "", fmt.Errorf("BASE_URL is required for agent API %s", V2)
	}
	path := c.ChatPath
	if path == "" {
		path = DefaultChatPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return validURL(strings.TrimRight(c.BaseURL, "/") + path)
}

func validURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid agent endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid agent endpoint %q: scheme must be http or https", raw)
	}
	return raw, nil
}

// NormalizeInstanceID reduces a service-instance identifier to the bare id:
// a colon-delimited resource name keeps its last segment, otherwise an
// underscore-prefixed name keeps what follows the last underscore.
func NormalizeInstanceID(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	if i := strings.LastIndex(id, "_"); i >= 0 {
		return id[i+1:]
	}
	return id
}
