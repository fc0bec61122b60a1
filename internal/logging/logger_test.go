package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.Error("boom", "error", errors.New("disk full"))

	assert.Contains(t, buf.String(), `"err":"disk full"`)
	assert.NotContains(t, buf.String(), `"error"`)
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "text")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
