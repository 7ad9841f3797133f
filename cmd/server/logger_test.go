package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestNewLoggerFansOutToFile(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "localchat.log")

	logger, closer, err := newLogger(&stderr, "info", path)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("Server starting", slog.String("port", "8080"))
	require.NoError(t, closer.Close())

	assert.Contains(t, stderr.String(), "msg=\"Server starting\" port=8080")
	assert.NotContains(t, stderr.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "Server starting", entry["msg"])
	assert.Equal(t, "8080", entry["port"])
}

func TestNewLoggerWithoutFile(t *testing.T) {
	var stderr bytes.Buffer

	logger, closer, err := newLogger(&stderr, "debug", "")
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("visible")
	assert.Contains(t, stderr.String(), "visible")
}
