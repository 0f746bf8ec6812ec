package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "github.com/lewisedginton/orchestrate_relay/internal/config"
	pkgconfig "github.com/lewisedginton/orchestrate_relay/pkg/config"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Format: "json", Service: "test", Output: io.Discard})
}

func testConfig(iamURL, agentURL, apiKey string) *appconfig.AppConfig {
	return &appconfig.AppConfig{
		Common: pkgconfig.CommonConfig{ServiceName: "relay-test", LogLevel: "error", LogFormat: "json"},
		HTTP: pkgconfig.HTTPServerConfig{
			Port: 8000, ReadTimeoutSeconds: 5, WriteTimeoutSeconds: 15, IdleTimeoutSeconds: 5, MaxHeaderBytes: 1 << 20,
		},
		Metrics: pkgconfig.MetricsConfig{EnableHTTPMetrics: true, Port: 9090},
		IBM:     appconfig.IBMConfig{APIKey: apiKey, IAMURL: iamURL, IAMTimeout: time.Second},
		Agent: appconfig.AgentConfig{
			APIVersion: "v2", InstanceID: "inst", AgentID: "agent", BaseURL: agentURL, ChatPath: "/v2/chat",
			ConnectTimeout: time.Second, ReadTimeout: 2 * time.Second, Timeout: 3 * time.Second,
		},
		Health: appconfig.HealthConfig{Timeout: time.Second, FailureThreshold: 1},
	}
}

func stubUpstreams(t *testing.T) (iamURL, agentURL string) {
	t.Helper()
	iamServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer"}`))
	}))
	t.Cleanup(iamServer.Close)
	agentServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"output":{"generic":[{"response_type":"text","text":"pong"}]}}`))
	}))
	t.Cleanup(agentServer.Close)
	return iamServer.URL, agentServer.URL
}

func newTestServer(t *testing.T, cfg *appconfig.AppConfig) *Server {
	t.Helper()
	s, err := New(cfg, testLogger())
	require.NoError(t, err)
	return s
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatThroughRouter(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	s := newTestServer(t, testConfig(iamURL, agentURL, "key"))

	rec := do(s.Handler(), http.MethodPost, "/api/chat", `{"user_query":"ping"}`,
		map[string]string{"Content-Type": "application/json", "Origin": "https://frontend.example"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","answer":"pong","data":{"output":{"generic":[{"response_type":"text","text":"pong"}]}}}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "https://frontend.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	m := s.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequestsCounter.WithLabelValues("iam", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamRequestsCounter.WithLabelValues("agent", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPResponsesCounter.WithLabelValues("200")))
}

func TestCORSPreflight(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	s := newTestServer(t, testConfig(iamURL, agentURL, "key"))

	rec := do(s.Handler(), http.MethodOptions, "/api/chat", "", map[string]string{
		"Origin":                         "https://anywhere.example",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Content-Type, X-Custom",
	})

	assert.Less(t, rec.Code, 300)
	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMissingAPIKey(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	s := newTestServer(t, testConfig(iamURL, agentURL, ""))

	rec := do(s.Handler(), http.MethodPost, "/api/chat", `{"user_query":"ping"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "IBM_API_KEY")

	rec = do(s.Handler(), http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(s.Handler(), http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeartbeatAndHealth(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	s := newTestServer(t, testConfig(iamURL, agentURL, "key"))

	rec := do(s.Handler(), http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"credentials"`)
}

func TestPathPrefix(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	cfg := testConfig(iamURL, agentURL, "key")
	cfg.HTTP.PathPrefix = "/relay"
	s := newTestServer(t, cfg)

	rec := do(s.Handler(), http.MethodPost, "/relay/api/chat", `{"user_query":"ping"}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestNewRejectsUnaddressableAgent(t *testing.T) {
	cfg := testConfig("https://iam.example", "", "key")
	_, err := New(cfg, testLogger())
	assert.Error(t, err)

	cfg = testConfig("https://iam.example", "https://agent.example", "key")
	cfg.Agent.APIVersion = "v7"
	_, err = New(cfg, testLogger())
	assert.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	iamURL, agentURL := stubUpstreams(t)
	s := newTestServer(t, testConfig(iamURL, agentURL, "key"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
