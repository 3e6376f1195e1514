package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestConfigureFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "voicemap-test", Version: "v1.2.3"})

	base := Base()
	base.Info().Str("event", "test.event").Msg("hello")

	entry := captureLine(t, &buf)
	assert.Equal(t, "voicemap-test", entry["service"])
	assert.Equal(t, "v1.2.3", entry["version"])
	assert.Equal(t, "test.event", entry["event"])
	assert.Equal(t, "hello", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "voicemap-test"})

	component := WithComponent("mds")
	component.Info().Msg("scaled")

	entry := captureLine(t, &buf)
	assert.Equal(t, "mds", entry["component"])
}

func TestReconfigureLastWins(t *testing.T) {
	var first, second bytes.Buffer
	Configure(Config{Output: &first, Service: "a"})
	Configure(Config{Output: &second, Service: "b"})

	base := Base()
	base.Info().Msg("routed")

	assert.Zero(t, first.Len())
	entry := captureLine(t, &second)
	assert.Equal(t, "b", entry["service"])
}

func TestContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "voicemap-test"})

	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithJobID(ctx, "job-456")

	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Equal(t, "job-456", JobIDFromContext(ctx))

	handler := WithComponentFromContext(ctx, "api")
	handler.Info().Msg("handled")

	entry := captureLine(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "job-456", entry["job_id"])
	assert.Equal(t, "api", entry["component"])
}

func TestContextCorrelationAbsent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "voicemap-test"})

	handler := WithComponentFromContext(context.Background(), "api")
	handler.Info().Msg("no ids")

	entry := captureLine(t, &buf)
	_, hasReq := entry["request_id"]
	assert.False(t, hasReq)
}

func TestDerive(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "voicemap-test"})

	derived := Derive(func(ctx *zerolog.Context) {
		*ctx = ctx.Str("group", "cantonese")
	})
	derived.Info().Msg("derived")

	entry := captureLine(t, &buf)
	assert.Equal(t, "cantonese", entry["group"])
}
