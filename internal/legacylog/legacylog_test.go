package legacylog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFormatsBracketedLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "daemonkitd", slog.LevelInfo))

	logger.Info("engine started", "pid", 1234)

	line := buf.String()
	require.NotEmpty(t, line)
	assert.True(t, strings.Contains(line, "INFO"))
	assert.True(t, strings.Contains(line, "[daemonkitd]"))
	assert.True(t, strings.Contains(line, "engine started"))
	assert.True(t, strings.Contains(line, "pid=1234"))
}

func TestHandlerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "daemonkitd", slog.LevelWarn))

	logger.Debug("should not appear")
	logger.Info("also should not appear")
	assert.Empty(t, buf.String())

	logger.Warn("this appears")
	assert.Contains(t, buf.String(), "WARN")
}

func TestWithAttrsCarriesThrough(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "daemonkitd", slog.LevelInfo)).With("component", "engine")

	logger.Info("dispatching", "event", "tick")
	line := buf.String()
	assert.Contains(t, line, "component=engine")
	assert.Contains(t, line, "event=tick")
}

func TestWithGroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, "daemonkitd", slog.LevelInfo)).WithGroup("queue")

	logger.Info("scheduled", "count", 3)
	assert.Contains(t, buf.String(), "queue.count=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
