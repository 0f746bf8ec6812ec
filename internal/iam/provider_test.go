package iam

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	target, outcome string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeRecorder) ObserveUpstream(target, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{target, outcome})
}

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "json", Service: "test", Output: io.Discard})
}

func TestAcquire(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", r.PostForm.Get("grant_type"))
		assert.Equal(t, "secret-key", r.PostForm.Get("apikey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	p := NewProvider(Config{APIKey: "secret-key", URL: server.URL}, testLogger(), WithRecorder(rec))

	tok, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []observation{{"iam", "success"}}, rec.obs)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	tok.SetAuthHeader(req)
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
}

func TestAcquireNoTokenFieldYieldsEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"expires_in":3600}`))
	}))
	defer server.Close()

	tok, err := NewProvider(Config{APIKey: "k", URL: server.URL}, testLogger()).Acquire(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok.AccessToken)
}

func TestAcquireMissingKeyMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	_, err := NewProvider(Config{URL: server.URL}, testLogger(), WithRecorder(rec)).Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.Configuration, apperr.KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	assert.Zero(t, calls.Load())
	assert.Empty(t, rec.obs)
}

func TestAcquireRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":"BXNIM0415E","errorMessage":"Provided API key could not be found."}`))
	}))
	defer server.Close()

	rec := &fakeRecorder{}
	_, err := NewProvider(Config{APIKey: "bad", URL: server.URL}, testLogger(), WithRecorder(rec)).Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.Authentication, apperr.KindOf(err))
	assert.Equal(t, http.StatusUnauthorized, apperr.HTTPStatus(err))
	assert.NotContains(t, apperr.Detail(err), "BXNIM0415E")
	assert.Equal(t, []observation{{"iam", "authentication_error"}}, rec.obs)
}

func TestAcquireMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	_, err := NewProvider(Config{APIKey: "k", URL: server.URL}, testLogger()).Acquire(context.Background())
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestAcquireTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewProvider(Config{APIKey: "k", URL: server.URL, Timeout: 50 * time.Millisecond}, testLogger()).Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.Timeout, apperr.KindOf(err))
	assert.Equal(t, http.StatusGatewayTimeout, apperr.HTTPStatus(err))
	assert.Contains(t, apperr.Detail(err), "50ms")
}

func TestAcquireConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewProvider(Config{APIKey: "k", URL: addr}, testLogger()).Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.Connection, apperr.KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))
}

func TestNewProviderDefaults(t *testing.T) {
	p := NewProvider(Config{APIKey: "k"}, testLogger())
	assert.Equal(t, DefaultURL, p.cfg.URL)
	assert.Equal(t, DefaultTimeout, p.cfg.Timeout)
}
