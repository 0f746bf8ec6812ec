package httpmiddleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
)

// CorrelationID assigns every request a fresh correlation ID. Client-supplied
// IDs are discarded. The ID is written to the request header, the request
// context and the response header so a frontend can quote it in bug reports.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.New().String()

			r.Header.Set(logger.CorrelationIDHeader, id)
			w.Header().Set(logger.CorrelationIDHeader, id)

			next.ServeHTTP(w, r.WithContext(logger.WithCorrelationIDContext(r.Context(), id)))
		})
	}
}
