// Package orchestrate relays chat queries to a watsonx Orchestrate agent and
// normalizes the reply for API clients.
package orchestrate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	target        = "agent"
	maxLoggedBody = 512
)

// TokenSource supplies a bearer token for each agent call.
type TokenSource interface {
	Acquire(ctx context.Context) (*oauth2.Token, error)
}

// Recorder receives one observation per agent call.
type Recorder interface {
	ObserveUpstream(target, outcome string, d time.Duration)
}

// Client is stateless between calls and safe for concurrent use.
type Client struct {
	cfg      Config
	endpoint string
	tokens   TokenSource
	http     *http.Client
	log      logger.Logger
	recorder Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client built from Config.Timeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithRecorder sets where call outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(cl *Client) { cl.recorder = r }
}

// NewClient resolves the endpoint and prepares the outbound client. Zero
// timeouts take DefaultTimeouts.
func NewClient(cfg Config, tokens TokenSource, log logger.Logger, opts ...Option) (*Client, error) {
	def := DefaultTimeouts()
	if cfg.Timeouts.Connect <= 0 {
		cfg.Timeouts.Connect = def.Connect
	}
	if cfg.Timeouts.Read <= 0 {
		cfg.Timeouts.Read = def.Read
	}
	if cfg.Timeouts.Total <= 0 {
		cfg.Timeouts.Total = def.Total
	}
	if cfg.Version == "" {
		cfg.Version = V2
	}

	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		endpoint: endpoint,
		tokens:   tokens,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewHTTPClient(cfg.Timeouts)
	}
	return c, nil
}

// Endpoint returns the resolved chat URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Relay sends query to the agent and returns the normalized reply.
//
// Token failures are returned unchanged. Agent failures are *apperr.Error
// values of kind Connection, Timeout, UpstreamStatus or Internal.
func (c *Client) Relay(ctx context.Context, query string) (*ChatResponse, error) {
	log := logger.GetLoggerFromContext(ctx, c.log).WithFields(
		logger.StringField("endpoint", c.endpoint),
		logger.StringField("api_version", string(c.cfg.Version)))

	tok, err := c.tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	log.Info("Relaying query to agent", logger.TruncatedField("query", query, maxLoggedBody))

	start := time.Now()
	resp, err := c.call(ctx, log, tok, query)
	c.observe(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	log.Info("Agent response relayed", logger.DurationField("duration", time.Since(start)))
	return resp, nil
}

func (c *Client) call(ctx context.Context, log logger.Logger, tok *oauth2.Token, query string) (*ChatResponse, error) {
	payload, err := json.Marshal(buildPayload(c.cfg.Version, query))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to encode agent request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to build agent request", err)
	}
	setHeaders(req.Header, c.cfg)
	tok.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(log, err, payload)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(log, err, payload)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("Agent returned an error status",
			logger.HTTPStatusField(resp.StatusCode),
			logger.TruncatedField("payload", string(payload), maxLoggedBody),
			logger.TruncatedField("body", string(body), maxLoggedBody))
		return nil, apperr.Upstream(resp.StatusCode, string(body))
	}

	out, err := normalize(c.cfg.Version, body)
	if err != nil {
		log.Error("Agent returned an unreadable body",
			logger.HTTPStatusField(resp.StatusCode),
			logger.TruncatedField("body", string(body), maxLoggedBody),
			logger.ErrorField(err))
		return nil, apperr.Wrap(apperr.Internal, "unreadable agent response", err)
	}
	return out, nil
}

func (c *Client) transportError(log logger.Logger, err error, payload []byte) error {
	classified := apperr.Classify(err, c.timeoutMessage(err), "cannot connect to the Watsonx Orchestrate server")
	log.Error("Agent call failed",
		logger.StringField("kind", classified.Kind.String()),
		logger.TruncatedField("payload", string(payload), maxLoggedBody),
		logger.ErrorField(err))
	return classified
}

// Transport error texts net/http uses for the per-phase deadlines. They are
// not exported as error values.
const (
	tlsHandshakeTimeoutText   = "TLS handshake timeout"
	responseHeaderTimeoutText = "timeout awaiting response headers"
)

// timeoutMessage names the budget that ran out, as far as the error tells.
// The dial and TLS handshake share the connect budget.
func (c *Client) timeoutMessage(err error) string {
	connect := fmt.Sprintf("could not connect to the Watsonx Orchestrate server within the %s connect timeout", c.cfg.Timeouts.Connect)
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return connect
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, tlsHandshakeTimeoutText):
		return connect
	case strings.Contains(msg, responseHeaderTimeoutText):
		return fmt.Sprintf("Watsonx Orchestrate did not start responding within the %s read timeout", c.cfg.Timeouts.Read)
	}
	return fmt.Sprintf("Watsonx Orchestrate did not respond within the %s timeout", c.cfg.Timeouts.Total)
}

func (c *Client) observe(err error, d time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	c.recorder.ObserveUpstream(target, outcome, d)
}
