package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: InfoLevel, Service: "orchestrate-relay", Output: &buf})

	log.Info("relay finished", StringField("endpoint", "https://agent.example"), IntField("http_status", 200))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "relay finished", entries[0]["msg"])
	assert.Equal(t, "orchestrate-relay", entries[0]["service"])
	assert.Equal(t, "https://agent.example", entries[0]["endpoint"])
	assert.Equal(t, "200", entries[0]["http_status"])
	assert.Equal(t, "info", entries[0]["level"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: WarnLevel, Output: &buf})

	log.Debug("debug")
	log.Info("info")
	log.Warn("warn")
	log.Error("error")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warning", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestWithFieldsIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})

	child := base.WithFields(StringField("target", "agent"))
	child.Info("child")
	base.Info("base")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "agent", entries[0]["target"])
	_, ok := entries[1]["target"]
	assert.False(t, ok, "parent logger must not see child fields")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Format: "text", Output: &buf})
	log.Info("plain", StringField("k", "v"))
	assert.Contains(t, buf.String(), "msg=plain")
	assert.Contains(t, buf.String(), "k=v")
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, LogField{Key: "n", Value: "42"}, IntField("n", 42))
	assert.Equal(t, LogField{Key: "n", Value: "42"}, Int64Field("n", 42))
	assert.Equal(t, LogField{Key: "ok", Value: "true"}, BoolField("ok", true))
	assert.Equal(t, LogField{Key: "d", Value: "1.5s"}, DurationField("d", 1500*time.Millisecond))
	assert.Equal(t, LogField{Key: "error", Value: "<nil>"}, ErrorField(nil))
	assert.Equal(t, LogField{Key: "d", Value: "2s"}, Field("d", 2*time.Second))
	assert.Equal(t, LogField{Key: "f", Value: "0.5"}, Field("f", 0.5))
	assert.Equal(t, "http_status", HTTPStatusField(504).Key)
	assert.Equal(t, LogField{Key: "body", Value: "abc...(truncated)"}, TruncatedField("body", "abcdef", 3))
	assert.Equal(t, LogField{Key: "body", Value: "abc"}, TruncatedField("body", "abc", 3))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestCorrelationIDContext(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetCorrelationIDFromContext(ctx))

	again, sameID := EnsureCorrelationID(ctx)
	assert.Equal(t, id, sameID)
	assert.Equal(t, ctx, again)
}

func TestEnsureHTTPCorrelationID(t *testing.T) {
	t.Run("keeps a valid incoming id", func(t *testing.T) {
		incoming := uuid.New().String()
		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(CorrelationIDHeader, incoming)

		req, id := EnsureHTTPCorrelationID(req)
		assert.Equal(t, incoming, id)
		assert.Equal(t, incoming, GetCorrelationIDFromContext(req.Context()))
	})

	t.Run("replaces an invalid id", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/chat", nil)
		req.Header.Set(CorrelationIDHeader, "not-a-uuid")

		req, id := EnsureHTTPCorrelationID(req)
		assert.NotEqual(t, "not-a-uuid", id)
		assert.Equal(t, id, req.Header.Get(CorrelationIDHeader))
	})
}

func TestGetLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})
	ctx := WithCorrelationIDContext(context.Background(), "abc")

	GetLoggerFromContext(ctx, base).Info("tagged")
	GetLoggerFromContext(context.Background(), base).Info("untagged")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[0][CorrelationIDFieldKey])
	_, ok := entries[1][CorrelationIDFieldKey]
	assert.False(t, ok)
}
