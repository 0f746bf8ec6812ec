package httpmiddleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/unrolled/secure"
)

// CORSConfig represents CORS configuration options
type CORSConfig struct {
	AllowedMethods []string
	AllowedHeaders []string
	AllowedOrigins []string
	// AllowOriginFunc, when set, decides instead of AllowedOrigins and the
	// request origin is echoed back.
	AllowOriginFunc  func(r *http.Request, origin string) bool
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig permits every origin, method and header. The relay is
// called straight from browser frontends hosted anywhere. Origins are echoed
// rather than answered with "*", which browsers refuse alongside credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowOriginFunc:  allowAnyOrigin,
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// CORS middleware configures Cross-Origin Resource Sharing
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedMethods:   config.AllowedMethods,
		AllowedHeaders:   config.AllowedHeaders,
		AllowedOrigins:   config.AllowedOrigins,
		AllowOriginFunc:  config.AllowOriginFunc,
		ExposedHeaders:   config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
	})
}

func allowAnyOrigin(*http.Request, string) bool { return true }

// Security adds security headers. A nil opts uses the secure package defaults.
func Security(opts *secure.Options) func(http.Handler) http.Handler {
	if opts == nil {
		return secure.New().Handler
	}
	return secure.New(*opts).Handler
}

// DefaultSecurityOptions returns header settings suitable for a JSON API.
func DefaultSecurityOptions(isDevelopment bool) *secure.Options {
	return &secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
		IsDevelopment:      isDevelopment,
	}
}
