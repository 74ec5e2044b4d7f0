package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Lllllllleong/docpipeline/internal/config"
)

func TestOutput_DefaultsToStderr(t *testing.T) {
	assert.Same(t, os.Stderr, Output(config.LogConfig{}))
}

func TestOutput_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docpipe.log")
	w := Output(config.LogConfig{File: path, MaxSizeMB: 5, MaxBackups: 2})

	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, path, lj.Filename)
	assert.Equal(t, 5, lj.MaxSize)
	assert.Equal(t, 2, lj.MaxBackups)
	require.NoError(t, lj.Close())
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info("Hidden.")
	assert.Zero(t, buf.Len())
	logger.Warn("Shown.", "key", "value")
	assert.Contains(t, buf.String(), `"msg":"Shown."`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
