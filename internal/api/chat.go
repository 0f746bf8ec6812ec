// Package api serves the relay's public chat endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	"github.com/lewisedginton/orchestrate_relay/internal/middleware"
	"github.com/lewisedginton/orchestrate_relay/internal/orchestrate"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// ChatPath is the route of the chat endpoint.
const ChatPath = "/api/chat"

const maxRequestBytes = 1 << 20

// Relayer forwards one query upstream.
type Relayer interface {
	Relay(ctx context.Context, query string) (*orchestrate.ChatResponse, error)
}

// ChatRequest is the body accepted by POST /api/chat.
type ChatRequest struct {
	UserQuery *string `json:"user_query"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

// Handler serves the chat endpoint.
type Handler struct {
	relay Relayer
	log   logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(relay Relayer, log logger.Logger) *Handler {
	return &Handler{relay: relay, log: log}
}

// RegisterRoutes mounts the chat endpoint on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(ChatPath, h.Chat)
}

// Chat decodes the query, relays it and writes the normalized answer or a
// JSON error with the status of the failure kind.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	log := logger.GetLoggerFromContext(r.Context(), h.log)

	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, detailBody{Detail: "request body too large"})
			return
		}
		log.Debug("Rejected chat request", logger.ErrorField(err))
		writeJSON(w, http.StatusUnprocessableEntity, detailBody{Detail: "request body must be a JSON object with a string user_query: " + err.Error()})
		return
	}
	if req.UserQuery == nil {
		writeJSON(w, http.StatusUnprocessableEntity, detailBody{Detail: "user_query is required"})
		return
	}

	resp, err := h.relay.Relay(r.Context(), *req.UserQuery)
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			log.Warn("Client went away before the relay finished", logger.ErrorField(err))
			return
		}
		h.writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeError maps err to its status and body. Internal failures use the
// generic error envelope so only the cause text reaches the client.
func (h *Handler) writeError(w http.ResponseWriter, log logger.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)

	if kind == apperr.Internal {
		log.Error("Unexpected relay failure", logger.ErrorField(err))
		writeJSON(w, status, middleware.ErrorBody{
			Status:  "error",
			Message: apperr.InternalMessage,
			Detail:  err.Error(),
		})
		return
	}

	log.Warn("Chat request failed",
		logger.StringField("kind", kind.String()),
		logger.HTTPStatusField(status))
	writeJSON(w, status, detailBody{Detail: apperr.Detail(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
