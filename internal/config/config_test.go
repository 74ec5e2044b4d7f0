package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, WorkerModeInProcess, cfg.Worker.Mode)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Zero(t, cfg.Worker.Timeout.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Handles.TTL.Duration)
	assert.Equal(t, "pdftoppm", cfg.Renderer.Binary)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	t.Setenv("DOCPIPE_TEST_BIN", "/opt/bin/pdf-worker")
	t.Setenv("DOCPIPE_WORKER_CONCURRENCY", "2")

	path := writeTemp(t, `worker:
  mode: subprocess
  binary: ${DOCPIPE_TEST_BIN}
  concurrency: 8
  timeout: 90s
handles:
  ttl: 5m
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, WorkerModeSubprocess, cfg.Worker.Mode)
	assert.Equal(t, "/opt/bin/pdf-worker", cfg.Worker.Binary)
	assert.Equal(t, 2, cfg.Worker.Concurrency, "environment wins over file")
	assert.Equal(t, 90*time.Second, cfg.Worker.Timeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Handles.TTL.Duration)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad mode", "worker:\n  mode: thread\n"},
		{"bad duration", "worker:\n  timeout: soon\n"},
		{"negative concurrency", "worker:\n  concurrency: -1\n"},
		{"bad level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("DOCPIPE_SET", "value")
	assert.Equal(t, "value", ExpandEnv("${DOCPIPE_SET}"))
	assert.Equal(t, "fallback", ExpandEnv("${DOCPIPE_UNSET_XYZ:-fallback}"))
	assert.Equal(t, "", ExpandEnv("${DOCPIPE_UNSET_XYZ}"))
}

func TestLoadChain(t *testing.T) {
	path := writeTemp(t, `inputs: [a.pdf, b.pdf]
steps:
  - tool: merge
  - tool: compress
    tier: standard
  - tool: protect
    passphrase: secret
output: out.pdf
`)
	chain, err := LoadChain(path)
	require.NoError(t, err)
	require.Len(t, chain.Steps, 3)
	assert.Equal(t, "compress", chain.Steps[1].Tool)
	assert.Equal(t, "secret", chain.Steps[2].Passphrase)

	_, err = LoadChain(writeTemp(t, "inputs: [a.pdf]\nsteps:\n  - tool: watermark\noutput: x.pdf\n"))
	assert.Error(t, err)
}
