package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refloop/pkg/config"
)

func writeConfig(t *testing.T, target, content string) {
	t.Helper()
	path := config.Path(target)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_NoFile_UsesDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultProvider, cfg.Agent.Provider)
	assert.Equal(t, config.DefaultAgentTimeout, cfg.Agent.Timeout)
	assert.Equal(t, 0, cfg.Run.Passes)
	assert.Equal(t, 0, cfg.Run.MaxFiles)
	assert.Equal(t, config.DefaultMaxWorkers, cfg.Run.MaxWorkers)
	assert.True(t, cfg.Run.Calibrate)
	assert.True(t, cfg.Run.Checkpoint)
	assert.False(t, cfg.Run.Orchestrate)
	assert.True(t, cfg.Verify.Enabled)
	assert.Empty(t, cfg.Verify.Commands)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, cfg, config.Default())
}

func TestLoad_ValidFile_Unmarshals(t *testing.T) {
	target := t.TempDir()
	writeConfig(t, target, `agent:
  provider: codex
  model: gpt-5-codex
  timeout: 45m
run:
  passes: 3
  max_files: 50000
  orchestrate: true
  max_workers: 6
verify:
  commands:
    - make lint
    - make test
  timeout: 2m
logging:
  level: debug
  format: json
`)

	cfg, err := config.Load(target, "")
	require.NoError(t, err)

	assert.Equal(t, "codex", cfg.Agent.Provider)
	assert.Equal(t, "gpt-5-codex", cfg.Agent.Model)
	assert.Equal(t, 45*time.Minute, cfg.Agent.Timeout)
	assert.Equal(t, 3, cfg.Run.Passes)
	assert.Equal(t, 50000, cfg.Run.MaxFiles)
	assert.True(t, cfg.Run.Orchestrate)
	assert.Equal(t, 6, cfg.Run.MaxWorkers)
	assert.Equal(t, []string{"make lint", "make test"}, cfg.Verify.Commands)
	assert.Equal(t, 2*time.Minute, cfg.Verify.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	target := t.TempDir()
	writeConfig(t, target, "agent:\n  provider: codex\n")
	t.Setenv("REFLOOP_AGENT_PROVIDER", "claude")
	t.Setenv("REFLOOP_RUN_MAX_WORKERS", "2")

	cfg, err := config.Load(target, "")
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.Agent.Provider)
	assert.Equal(t, 2, cfg.Run.MaxWorkers)
}

func TestLoad_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  passes: 5\n"), 0o600))

	cfg, err := config.Load(t.TempDir(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Run.Passes)

	_, err = config.Load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"provider", "agent:\n  provider: gemini\n", config.ErrInvalidProvider},
		{"passes", "run:\n  passes: 25\n", config.ErrInvalidPasses},
		{"negative max files", "run:\n  max_files: -1\n", config.ErrInvalidMaxFiles},
		{"workers", "run:\n  max_workers: 0\n", config.ErrInvalidMaxWorkers},
		{"timeout", "agent:\n  timeout: 0s\n", config.ErrInvalidTimeout},
		{"log level", "logging:\n  level: loud\n", config.ErrInvalidLogLevel},
		{"log format", "logging:\n  format: xml\n", config.ErrInvalidLogFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := t.TempDir()
			writeConfig(t, target, tt.content)

			_, err := config.Load(target, "")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	target := t.TempDir()
	writeConfig(t, target, "agent: [unclosed\n")

	_, err := config.Load(target, "")
	require.Error(t, err)
}
