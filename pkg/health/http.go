package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Response is the JSON body served by the health endpoints.
type Response struct {
	Status    string                 `json:"status"` // "healthy" | "unhealthy"
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// CheckStatus is the per-check entry of Response.
type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// LivenessHandler answers 200 when all liveness checks pass, 503 otherwise.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return c.handler(c.CheckLiveness)
}

// ReadinessHandler answers 200 when all readiness checks pass, 503 otherwise.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return c.handler(c.CheckReadiness)
}

// HealthHandler combines liveness and readiness in one report.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return c.handler(func(ctx context.Context) (*Status, error) {
		live, liveErr := c.CheckLiveness(ctx)
		ready, readyErr := c.CheckReadiness(ctx)
		combined := &Status{
			Healthy: live.Healthy && ready.Healthy,
			Checks:  append(append([]CheckResult(nil), live.Checks...), ready.Checks...),
		}
		if liveErr != nil {
			return combined, liveErr
		}
		return combined, readyErr
	})
}

func (c *Checker) handler(run func(context.Context) (*Status, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := run(r.Context())

		resp := Response{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckStatus, len(status.Checks)),
		}
		code := http.StatusOK
		if !status.Healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
			if err != nil {
				resp.Message = err.Error()
			}
		}
		for _, res := range status.Checks {
			cs := CheckStatus{Status: "ok", Latency: res.Latency.String()}
			if !res.Healthy {
				cs.Status = "error"
				cs.Error = res.Error
			}
			resp.Checks[res.Name] = cs
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
