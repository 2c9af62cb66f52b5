package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	logger := New(nil)
	require.NotNil(t, logger)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message", "backlog", 3)
	assert.Contains(t, buf.String(), "warn message")
	assert.Contains(t, buf.String(), "backlog=3")
}

func TestFormatArgsOddLength(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("message", "dangling")
	assert.NotContains(t, buf.String(), "dangling")
}

func TestPrintfVariants(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: LevelDebug, Output: &buf})

	logger.Errorf("failed after %d retries", 3)
	line := buf.String()
	assert.True(t, strings.Contains(line, "failed after 3 retries"))
	assert.True(t, strings.Contains(line, "[ERROR]"))
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(New(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(New(nil)) })

	Debug("debug message", "key", "value")
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Warn("warning message")
	assert.Contains(t, buf.String(), "warning message")
}
