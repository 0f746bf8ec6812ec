package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lewisedginton/orchestrate_relay/pkg/logger"
	"github.com/unrolled/secure"
)

// Config selects and configures the middleware applied by ApplyToRouter.
// Start from DefaultConfig and adjust.
type Config struct {
	Logger      logger.Logger
	StripPrefix string
	CORS        *CORSConfig
	Security    *secure.Options
	Timeout     time.Duration

	// Recoverer replaces chi's default panic recoverer when set.
	Recoverer func(http.Handler) http.Handler

	// Metrics is an optional instrumentation middleware, installed after
	// logging so it sees the final status code.
	Metrics func(http.Handler) http.Handler

	EnableCorrelationID bool
	EnableLogging       bool // requires Logger
	EnableRecovery      bool
	EnableCORS          bool
	EnableSecurity      bool
	EnableCompression   bool
	EnableHeartbeat     bool // GET /ping
	EnableRealIP        bool
	EnableTimeout       bool
	EnableStripPrefix   bool // requires StripPrefix
}

// DefaultConfig returns a production-ready middleware configuration.
// Logging stays off until a Logger is supplied.
func DefaultConfig() Config {
	corsConfig := DefaultCORSConfig()
	return Config{
		CORS:    &corsConfig,
		Timeout: 60 * time.Second,

		EnableCorrelationID: true,
		EnableRecovery:      true,
		EnableCORS:          true,
		EnableSecurity:      true,
		EnableCompression:   true,
		EnableHeartbeat:     true,
		EnableRealIP:        true,
		EnableTimeout:       true,
	}
}

// ApplyToRouter installs the configured middleware on router, outermost first:
// correlation ID, security headers, real IP, logging, metrics, recovery,
// prefix stripping, CORS, timeout, compression, heartbeat.
func ApplyToRouter(router chi.Router, config Config) {
	if config.EnableCorrelationID {
		router.Use(CorrelationID())
	}
	if config.EnableSecurity {
		router.Use(Security(config.Security))
	}
	if config.EnableRealIP {
		router.Use(middleware.RealIP)
	}
	if config.EnableLogging && config.Logger != nil {
		router.Use(NewHTTPLogger(config.Logger).Middleware)
	}
	if config.Metrics != nil {
		router.Use(config.Metrics)
	}
	if config.EnableRecovery {
		if config.Recoverer != nil {
			router.Use(config.Recoverer)
		} else {
			router.Use(middleware.Recoverer)
		}
	}
	if config.EnableStripPrefix && config.StripPrefix != "" {
		router.Use(StripPrefix(config.StripPrefix))
	}
	if config.EnableCORS && config.CORS != nil {
		router.Use(CORS(*config.CORS))
	}
	if config.EnableTimeout && config.Timeout > 0 {
		router.Use(middleware.Timeout(config.Timeout))
	}
	if config.EnableCompression {
		router.Use(middleware.Compress(5))
	}
	if config.EnableHeartbeat {
		router.Use(middleware.Heartbeat("/ping"))
	}
}
