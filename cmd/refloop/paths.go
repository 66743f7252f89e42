package main

import (
	"fmt"
	"os"
	"path/filepath"

	"refloop/internal/logging"
	"refloop/pkg/checkpoint"
	"refloop/pkg/config"
	"refloop/pkg/eventlog"
)

// Paths holds the resolved refloop state paths of one target repository.
type Paths struct {
	TargetDir      string
	StateDir       string // <target>/.refloop or REFLOOP_STATE_DIR
	ConfigPath     string // empty when no config file exists
	CheckpointPath string
	HistoryPath    string // StateDir/history.db or REFLOOP_HISTORY_DB
	LogPath        string
}

// ResolvePaths returns the paths for target, respecting env var overrides.
// Environment variables:
//   - REFLOOP_STATE_DIR: state directory (default: <target>/.refloop)
//   - REFLOOP_HISTORY_DB: run history database (default: $STATE_DIR/history.db)
//
// configFlag names an explicit config file; otherwise StateDir/config.yaml
// is used when present.
func ResolvePaths(target, configFlag string) (*Paths, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	stateDir := envOr("REFLOOP_STATE_DIR", filepath.Join(abs, config.StateDirName))

	p := &Paths{
		TargetDir:      abs,
		StateDir:       stateDir,
		ConfigPath:     configFlag,
		CheckpointPath: filepath.Join(stateDir, checkpoint.FileName),
		HistoryPath:    envOr("REFLOOP_HISTORY_DB", filepath.Join(stateDir, eventlog.FileName)),
		LogPath:        logging.Path(stateDir),
	}
	if p.ConfigPath == "" {
		if candidate := filepath.Join(stateDir, config.FileName); fileExists(candidate) {
			p.ConfigPath = candidate
		}
	}
	return p, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadConfig reads the configuration for p.
func loadConfig(p *Paths) (*config.Config, error) {
	cfg, err := config.Load(p.TargetDir, p.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
