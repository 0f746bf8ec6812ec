// Package logger wraps logrus behind a small structured-logging interface
// shared by every package in the relay.
package logger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the request correlation ID.
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries.
	CorrelationIDFieldKey = "correlation_id"
)

type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// LogField is a single structured key/value pair.
type LogField struct {
	Key   string
	Value string
}

// Logger is the logging interface passed around the codebase.
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
}

// Config represents logger configuration.
type Config struct {
	Level   Level
	Format  string    // "json" (default) or "text"
	Service string    // added as the "service" field when set
	Output  io.Writer // defaults to os.Stdout
}

type logger struct {
	base   *logrus.Logger
	fields logrus.Fields
}

// NewLogger builds a Logger from the given configuration.
func NewLogger(config Config) Logger {
	l := logrus.New()

	if config.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)
	l.SetLevel(config.Level.logrusLevel())

	fields := logrus.Fields{}
	if config.Service != "" {
		fields["service"] = config.Service
	}

	return &logger{base: l, fields: fields}
}

// WithFields returns a child logger; the receiver is left untouched.
func (l *logger) WithFields(fields ...LogField) Logger {
	merged := make(logrus.Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	return &logger{base: l.base, fields: merged}
}

// WithCorrelationID returns a child logger tagged with the correlation ID.
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Info(msg string, fields ...LogField)  { l.entry(fields).Info(msg) }
func (l *logger) Error(msg string, fields ...LogField) { l.entry(fields).Error(msg) }
func (l *logger) Debug(msg string, fields ...LogField) { l.entry(fields).Debug(msg) }
func (l *logger) Warn(msg string, fields ...LogField)  { l.entry(fields).Warn(msg) }

func (l *logger) entry(fields []LogField) *logrus.Entry {
	e := l.base.WithFields(l.fields)
	if len(fields) == 0 {
		return e
	}
	extra := make(logrus.Fields, len(fields))
	for _, f := range fields {
		extra[f.Key] = f.Value
	}
	return e.WithFields(extra)
}

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: strconv.Itoa(value)}
}

// Int64Field returns a LogField for an int64 value.
func Int64Field(key string, value int64) LogField {
	return LogField{Key: key, Value: strconv.FormatInt(value, 10)}
}

// BoolField returns a LogField for a boolean value.
func BoolField(key string, value bool) LogField {
	return LogField{Key: key, Value: strconv.FormatBool(value)}
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// TruncatedField keeps at most limit bytes of value, marking the cut.
func TruncatedField(key, value string, limit int) LogField {
	if limit > 0 && len(value) > limit {
		value = value[:limit] + "...(truncated)"
	}
	return LogField{Key: key, Value: value}
}

// Field converts any value to its string form.
func Field[T any](key string, value T) LogField {
	switch v := any(value).(type) {
	case string:
		return LogField{Key: key, Value: v}
	case fmt.Stringer:
		return LogField{Key: key, Value: v.String()}
	case error:
		return LogField{Key: key, Value: v.Error()}
	default:
		return LogField{Key: key, Value: fmt.Sprintf("%v", v)}
	}
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// HTTPMethodField returns a LogField for an HTTP method.
func HTTPMethodField(method string) LogField {
	return StringField("http_method", method)
}

// HTTPPathField returns a LogField for an HTTP path.
func HTTPPathField(path string) LogField {
	return StringField("http_path", path)
}

// HTTPStatusField returns a LogField for an HTTP status code.
func HTTPStatusField(status int) LogField {
	return IntField("http_status", status)
}

// ClientIPField returns a LogField for a client IP address.
func ClientIPField(ip string) LogField {
	return StringField("client_ip", ip)
}

// WithCorrelationIDContext stores the correlation ID in ctx.
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext returns the correlation ID stored in ctx, or "".
func GetCorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return id
	}
	return ""
}

// EnsureCorrelationID returns ctx with a correlation ID, generating one if absent.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := GetCorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return WithCorrelationIDContext(ctx, id), id
}

// EnsureHTTPCorrelationID makes sure r carries a valid UUID correlation ID in
// both its header and its context.
func EnsureHTTPCorrelationID(r *http.Request) (*http.Request, string) {
	id := r.Header.Get(CorrelationIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
		r.Header.Set(CorrelationIDHeader, id)
	}
	return r.WithContext(WithCorrelationIDContext(r.Context(), id)), id
}

// GetLoggerFromContext returns baseLogger tagged with the correlation ID in ctx, if any.
func GetLoggerFromContext(ctx context.Context, baseLogger Logger) Logger {
	if id := GetCorrelationIDFromContext(ctx); id != "" {
		return baseLogger.WithCorrelationID(id)
	}
	return baseLogger
}
