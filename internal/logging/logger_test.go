package logging

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

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func newJSONLogger(buf *bytes.Buffer, level LogLevel) *SiteLogger {
	return NewLogger(&LoggerConfig{Level: level, Format: "json", Output: buf})
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelDebug)

	logger.WithComponent("styles").Info(context.Background(), "task finished", "files", 2)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "task finished", entries[0]["msg"])
	assert.Equal(t, "styles", entries[0]["component"])
	assert.Equal(t, float64(2), entries[0]["files"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelWarn)
	ctx := context.Background()

	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden too")
	logger.Warn(ctx, nil, "shown")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.Error(context.Background(), errors.New("disk full"), "write failed")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "disk full", entries[0]["error"])
}

func TestLoggerWithKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo).With("task", "fonts", "dangling")

	logger.Info(context.Background(), "copied")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "fonts", entries[0]["task"])
	assert.NotContains(t, entries[0], "dangling")
}

func TestFatalDoesNotExit(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.Fatal(context.Background(), errors.New("boom"), "giving up")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0]["fatal"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestPerfLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)
	ctx := context.Background()

	StartOperation(logger, "clean").End(ctx)
	StartOperation(logger, "styles").EndWithError(ctx, errors.New("bad"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "clean", entries[0]["operation"])
	assert.Contains(t, entries[0], "duration_ms")
	assert.Equal(t, "styles", entries[1]["operation"])
	assert.Equal(t, "bad", entries[1]["error"])
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.With("a", 1).WithComponent("x").Error(context.Background(), errors.New("e"), "m")
	})
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "FATAL", LevelFatal.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}
