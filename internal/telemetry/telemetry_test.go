package telemetry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestInitLoggerWritesJSONFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := filepath.Join(t.TempDir(), "logs")
	logger, closeLog, err := InitLogger(dir, slog.LevelInfo)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("turn started", "turn_id", "t1")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(filepath.Join(dir, "therapybuddy.log"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "turn started", record["msg"])
	assert.Equal(t, "t1", record["turn_id"])
	assert.Equal(t, "therapybuddy", record["service"])
}

func TestInitTelemetry(t *testing.T) {
	dir := t.TempDir()
	tracer, meter, cleanup, err := InitTelemetry(t.Context(), dir)
	require.NoError(t, err)
	require.NotNil(t, tracer)
	require.NotNil(t, meter)

	_, span := tracer.Start(t.Context(), "test")
	span.End()
	cleanup()

	_, err = os.Stat(filepath.Join(dir, "therapybuddy_traces.log"))
	assert.NoError(t, err)
}

func TestNoop(t *testing.T) {
	tracer, meter, cleanup := Noop()
	assert.NotNil(t, tracer)
	assert.NotNil(t, meter)
	cleanup()
}
