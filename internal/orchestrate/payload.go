package orchestrate

import (
	"net/http"

	"github.com/lewisedginton/orchestrate_relay/pkg/prefixed_uuid"
)

type v1Payload struct {
	Input   string         `json:"input"`
	Context map[string]any `json:"context"`
}

type v2Input struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
}

type v2User struct {
	ID prefixed_uuid.PrefixedUUID `json:"id"`
}

type v2Payload struct {
	Input v2Input `json:"input"`
	User  v2User  `json:"user"`
}

// buildPayload returns the request body for query. Each V2 call carries a
// fresh user id since the relay keeps no sessions.
func buildPayload(version Version, query string) any {
	if version == V1 {
		return v1Payload{Input: query, Context: map[string]any{}}
	}
	return v2Payload{
		Input: v2Input{MessageType: "text", Text: query},
		User:  v2User{ID: prefixed_uuid.New("user")},
	}
}

// setHeaders adds the content negotiation and, for V2, the routing headers.
// Authorization is set separately from the token.
func setHeaders(h http.Header, cfg Config) {
	h.Set("Accept", "application/json")
	h.Set("Content-Type", "application/json")
	if cfg.Version == V1 {
		return
	}
	h.Set("X-Instance-Id", NormalizeInstanceID(cfg.InstanceID))
	h.Set("X-Agent-Id", cfg.AgentID)
	if cfg.EnvironmentID != "" {
		h.Set("X-Environment-Id", cfg.EnvironmentID)
	}
}
