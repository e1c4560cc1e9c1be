package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(&bytes.Buffer{}) })
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestWithEventID(t *testing.T) {
	buf := captureOutput(t)

	WithEventID("evt_1", "invoice.paid").Info().Msg("handled")

	entry := lastLine(t, buf)
	assert.Equal(t, "evt_1", entry["event_id"])
	assert.Equal(t, "invoice.paid", entry["event_type"])
	assert.Equal(t, serviceName, entry["service"])
}

func TestFromContext(t *testing.T) {
	buf := captureOutput(t)

	FromContext(context.Background()).Info().Msg("bare")
	assert.NotContains(t, lastLine(t, buf), "request_id")

	ctx := IntoContext(context.Background(), WithRequestID("req-42"))
	FromContext(ctx).Warn().Msg("scoped")

	entry := lastLine(t, buf)
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestFormattedHelpers(t *testing.T) {
	buf := captureOutput(t)

	Error("charge %s failed after %d attempts", "ch_1", 3)

	entry := lastLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "charge ch_1 failed after 3 attempts", entry["message"])
}
