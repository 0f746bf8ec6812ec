package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandlers(t *testing.T) {
	c := New(WithFailureThreshold(1))
	c.AddLivenessCheck(&stubCheck{name: "process"})
	c.AddReadinessCheck(&stubCheck{name: "credentials", err: errors.New("IBM_API_KEY is not set")})

	t.Run("liveness healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		resp := decode(t, rec)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "ok", resp.Checks["process"].Status)
	})

	t.Run("readiness unhealthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode(t, rec)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "error", resp.Checks["credentials"].Status)
		assert.Equal(t, "IBM_API_KEY is not set", resp.Checks["credentials"].Error)
		assert.Contains(t, resp.Message, "credentials")
	})

	t.Run("combined report", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode(t, rec)
		assert.Len(t, resp.Checks, 2)
	})
}
