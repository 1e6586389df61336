package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonLogger returns a logger writing JSON at level into the returned buffer.
func jsonLogger(level string) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Format: "json", Output: buf}), buf
}

// lastEntry decodes the single JSON line the logger wrote.
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	assert.NotNil(t, New(nil))

	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
}

func TestFieldChaining(t *testing.T) {
	log, buf := jsonLogger("info")

	log.With().
		Str("engine", "postgres").
		Int("tables", 12).
		Err(errors.New("partial introspection")).
		Any("row_counts", []int{3, 7}).
		Logger().
		Info("schema introspected")

	entry := lastEntry(t, buf)
	assert.Equal(t, "postgres", entry["engine"])
	assert.Equal(t, float64(12), entry["tables"])
	assert.Equal(t, "partial introspection", entry["error"])
	assert.Equal(t, []any{float64(3), float64(7)}, entry["row_counts"])
	assert.Equal(t, "schema introspected", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestErrorWithAndWarnWith(t *testing.T) {
	log, buf := jsonLogger("warn")

	log.ErrorWith("connection failed", errors.New("dial refused"), map[string]any{
		"host": "localhost",
		"port": 5432,
	})
	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "dial refused", entry["error"])
	assert.Equal(t, "localhost", entry["host"])
	assert.Equal(t, float64(5432), entry["port"])

	buf.Reset()
	log.WarnWith("rate limiter failing open", map[string]any{"tenant": "t1"})
	entry = lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "t1", entry["tenant"])
}

func TestFormattedMessages(t *testing.T) {
	log, buf := jsonLogger("info")

	log.Infof("swept %d entries from %s", 3, "query")

	assert.Equal(t, "swept 3 entries from query", lastEntry(t, buf)["message"])
}

func TestPerInstanceLevels(t *testing.T) {
	// Two loggers in one process at different levels: no global state.
	verbose, verboseBuf := jsonLogger("debug")
	quiet, quietBuf := jsonLogger("error")

	verbose.Debug("noise")
	quiet.Debug("noise")
	quiet.Info("still noise")
	quiet.Error("signal")

	assert.Contains(t, verboseBuf.String(), "noise")
	assert.NotContains(t, quietBuf.String(), "noise")
	assert.Contains(t, quietBuf.String(), "signal")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	log, buf := jsonLogger("chatty")

	log.Debug("suppressed")
	log.Info("kept")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "kept")
}

func TestConsoleFormatIsHumanReadable(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "console", Output: buf})

	log.Info("starting up")

	out := buf.String()
	assert.Contains(t, out, "starting up")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "console output should not be JSON")
}

func TestContextRoundTrip(t *testing.T) {
	log, buf := jsonLogger("info")

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	assert.Equal(t, "from context", lastEntry(t, buf)["message"])
}

func TestFromContext_BareContext(t *testing.T) {
	// A context nothing was attached to still yields a usable logger.
	log := FromContext(context.Background())
	require.NotNil(t, log)
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error("discarded")
	log.With().Str("k", "v").Logger().Warn("also discarded")
	assert.NotNil(t, log)
}
