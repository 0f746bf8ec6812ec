// Package iam exchanges a static IBM Cloud API key for a short-lived bearer
// token. Tokens are fetched per call and never cached.
package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	DefaultURL     = "https://iam.cloud.ibm.com/identity/token"
	DefaultTimeout = 5 * time.Second

	grantType = "urn:ibm:params:oauth:grant-type:apikey"

	// metrics target label
	target = "iam"

	maxLoggedBody = 512
)

// Recorder receives one observation per token exchange.
type Recorder interface {
	ObserveUpstream(target, outcome string, d time.Duration)
}

// Config holds the token exchange settings.
type Config struct {
	APIKey  string
	URL     string
	Timeout time.Duration
}

// Provider performs the API key exchange.
type Provider struct {
	cfg      Config
	client   *http.Client
	log      logger.Logger
	recorder Recorder
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default client. The per-call timeout from
// Config still applies through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithRecorder sets where call outcomes are reported.
func WithRecorder(r Recorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// NewProvider creates a Provider. Empty URL and Timeout take the defaults.
func NewProvider(cfg Config, log logger.Logger, opts ...Option) *Provider {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Provider{
		cfg:    cfg,
		client: &http.Client{},
		log:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Acquire exchanges the API key for a bearer token.
//
// A missing key fails with a Configuration error before any network I/O. A
// non-2xx answer from the identity service is an Authentication error; the
// response body is logged, never returned. A 2xx answer without
// access_token yields an empty token.
func (p *Provider) Acquire(ctx context.Context) (*oauth2.Token, error) {
	log := logger.GetLoggerFromContext(ctx, p.log)

	if p.cfg.APIKey == "" {
		log.Error("IBM_API_KEY is not configured")
		return nil, apperr.New(apperr.Configuration, "server configuration error: IBM_API_KEY is not set")
	}

	start := time.Now()
	tok, err := p.exchange(ctx, log)
	p.observe(err, time.Since(start))
	return tok, err
}

func (p *Provider) exchange(ctx context.Context, log logger.Logger) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("apikey", p.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		classified := apperr.Classify(err,
			fmt.Sprintf("identity service did not respond within %s", p.cfg.Timeout),
			"cannot reach the identity service")
		log.Error("Token exchange failed",
			logger.StringField("endpoint", p.cfg.URL),
			logger.StringField("kind", classified.Kind.String()),
			logger.ErrorField(err))
		return nil, classified
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Classify(err,
			fmt.Sprintf("identity service did not respond within %s", p.cfg.Timeout),
			"cannot reach the identity service")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error("Identity service rejected the API key",
			logger.StringField("endpoint", p.cfg.URL),
			logger.HTTPStatusField(resp.StatusCode),
			logger.TruncatedField("body", string(body), maxLoggedBody))
		return nil, apperr.New(apperr.Authentication, "IBM API key is invalid or expired")
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		log.Error("Identity service returned malformed JSON",
			logger.TruncatedField("body", string(body), maxLoggedBody),
			logger.ErrorField(err))
		return nil, apperr.Wrap(apperr.Internal, "malformed identity service response", err)
	}
	if tr.AccessToken == "" {
		log.Warn("Identity service response has no access_token")
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType}
	if tr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	log.Debug("Token acquired", logger.DurationField("timeout", p.cfg.Timeout))
	return tok, nil
}

func (p *Provider) observe(err error, d time.Duration) {
	if p.recorder == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	p.recorder.ObserveUpstream(target, outcome, d)
}
