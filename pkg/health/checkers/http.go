// Package checkers provides reusable health.Check implementations.
package checkers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker probes an HTTP endpoint. Any response below 500 counts as
// reachable; only transport errors and 5xx fail the check.
type HTTPChecker struct {
	url    string
	name   string
	method string
	client *http.Client
}

// NewHTTPChecker creates a checker issuing HEAD requests with a 10s client
// timeout. An empty name defaults to the URL.
func NewHTTPChecker(url, name string) *HTTPChecker {
	return NewHTTPCheckerWithClient(url, name, &http.Client{Timeout: 10 * time.Second})
}

// NewHTTPCheckerWithClient creates a checker with a caller-supplied client.
func NewHTTPCheckerWithClient(url, name string, client *http.Client) *HTTPChecker {
	if name == "" {
		name = url
	}
	return &HTTPChecker{url: url, name: name, method: http.MethodHead, client: client}
}

// Name returns the name of this health check.
func (h *HTTPChecker) Name() string {
	return h.name
}

// Check issues one request to the endpoint.
func (h *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy status code: %d", resp.StatusCode)
	}
	return nil
}
