package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, output *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(output.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel string
		wantMsg   string
	}{
		{name: "debug", level: "debug", wantLevel: "DEBUG", wantMsg: "debug message"},
		{name: "info", level: "info", wantLevel: "INFO", wantMsg: "info message"},
		{name: "warn", level: "warn", wantLevel: "WARN", wantMsg: "warn message"},
		{name: "error", level: "error", wantLevel: "ERROR", wantMsg: "error message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger, err := New(&Config{Level: tt.level, Format: "json", writer: output})
			require.NoError(t, err)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			entries := decodeLines(t, output)
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.Equal(t, tt.wantMsg, entries[0]["msg"])
			assert.Contains(t, entries[0], "time")
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "console", NoColor: true, writer: output})
	require.NoError(t, err)

	logger.Info("Analysis submitted", slog.String("job_id", "text_1"))

	line := output.String()
	assert.Contains(t, line, "INF")
	assert.Contains(t, line, "Analysis submitted")
	assert.Contains(t, line, "job_id=text_1")
}

func TestNew_UnknownFormatFallsBackToJSON(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Format: "xml", writer: output})
	require.NoError(t, err)

	logger.Info("hello")

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0]["msg"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	logger.Info("written to file", slog.String("key", "value"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written to file"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestNew_FileOutputError(t *testing.T) {
	logger, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "service.log")})
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "DEBUG", expected: slog.LevelInfo},
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_WithGroup(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Format: "json", writer: output})
	require.NoError(t, err)

	logger.WithGroup("engine").Info("request", slog.String("path", "/analyze/text"))

	entries := decodeLines(t, output)
	require.Len(t, entries, 1)
	group, ok := entries[0]["engine"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/analyze/text", group["path"])
}

func TestLogger_WithAndComponent(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Format: "json", writer: output})
	require.NoError(t, err)

	logger.With(slog.String("service", "api")).Info("started")
	logger.Component("relay").Warn("heartbeat", slog.Int("idle_seconds", 10))

	entries := decodeLines(t, output)
	require.Len(t, entries, 2)
	assert.Equal(t, "api", entries[0]["service"])
	assert.Equal(t, "relay", entries[1]["component"])
	assert.Equal(t, float64(10), entries[1]["idle_seconds"])
}
