// Package middleware provides HTTP middleware components.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/orchestrate_relay/internal/apperr"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	Logger           logger.Logger
	EnableStackTrace bool   // Whether to log full stack traces
	ResponseMessage  string // Generic message returned to clients
}

// DefaultRecoveryConfig returns a sensible default configuration
func DefaultRecoveryConfig(log logger.Logger) RecoveryConfig {
	return RecoveryConfig{
		Logger:           log,
		EnableStackTrace: true,
		ResponseMessage:  apperr.InternalMessage,
	}
}

// ErrorBody is written for recovered panics and internal errors.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Recovery returns a middleware that turns panics into a 500 JSON response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity, as net/http does
					panic(rec)
				}
				handlePanic(w, r, rec, config)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func handlePanic(w http.ResponseWriter, r *http.Request, rec any, config RecoveryConfig) {
	var stackTrace string
	if config.EnableStackTrace {
		stackTrace = string(debug.Stack())
	}
	logPanic(r, rec, stackTrace, config.Logger)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(ErrorBody{
		Status:  "error",
		Message: config.ResponseMessage,
		Detail:  fmt.Sprintf("%v", rec),
	})
}

func logPanic(r *http.Request, rec any, stackTrace string, base logger.Logger) {
	if base == nil {
		fmt.Printf("PANIC: %v\nRequest: %s %s\nStack:\n%s\n", rec, r.Method, r.URL.Path, stackTrace)
		return
	}
	log := logger.GetLoggerFromContext(r.Context(), base)

	fields := []logger.LogField{
		logger.Field("panic_error", rec),
		logger.HTTPMethodField(r.Method),
		logger.HTTPPathField(r.URL.Path),
		logger.ClientIPField(r.RemoteAddr),
		logger.StringField("user_agent", r.UserAgent()),
	}
	if stackTrace != "" {
		fields = append(fields, logger.StringField("stack_trace", stackTrace))
	}
	if r.ContentLength > 0 {
		fields = append(fields, logger.Int64Field("content_length", r.ContentLength))
	}

	log.Error("HTTP request panic recovered", fields...)
}

// ErrorHandler logs every response with status 400 or above: 5xx at error
// level, 4xx at warn.
func ErrorHandler(config RecoveryConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if ww.Status() >= http.StatusBadRequest && config.Logger != nil {
				logHTTPError(r, ww.Status(), logger.GetLoggerFromContext(r.Context(), config.Logger))
			}
		})
	}
}

func logHTTPError(r *http.Request, statusCode int, log logger.Logger) {
	fields := []logger.LogField{
		logger.HTTPStatusField(statusCode),
		logger.HTTPMethodField(r.Method),
		logger.HTTPPathField(r.URL.Path),
		logger.ClientIPField(r.RemoteAddr),
	}

	message := fmt.Sprintf("HTTP %d response", statusCode)
	if statusCode >= http.StatusInternalServerError {
		log.Error(message, fields...)
		return
	}
	log.Warn(message, fields...)
}
