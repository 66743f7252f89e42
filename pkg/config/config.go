// Package config loads refloop settings from <target>/.refloop/config.yaml
// and REFLOOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidProvider   = errors.New("provider must be auto, codex or claude")
	ErrInvalidPasses     = errors.New("passes out of range")
	ErrInvalidMaxFiles   = errors.New("max files must not be negative")
	ErrInvalidMaxWorkers = errors.New("max workers out of range")
	ErrInvalidTimeout    = errors.New("timeout must be positive")
	ErrInvalidLogLevel   = errors.New("unknown log level")
	ErrInvalidLogFormat  = errors.New("log format must be text or json")
)

// Default configuration values.
const (
	DefaultProvider     = "auto"
	DefaultAgentTimeout = 30 * time.Minute
	DefaultMaxWorkers   = 4
	DefaultVerifyTime   = 10 * time.Minute

	// MaxPasses bounds an explicit pass count.
	MaxPasses = 24
	// MaxWorkersLimit bounds the worker count of one wave.
	MaxWorkersLimit = 16

	// StateDirName is the per-repository state directory.
	StateDirName = ".refloop"
	// FileName is the config file inside the state directory.
	FileName = "config.yaml"

	envPrefix = "REFLOOP"
)

var (
	providers  = []string{"auto", "codex", "claude"}
	logLevels  = []string{"debug", "info", "warn", "warning", "error"}
	logFormats = []string{"text", "json"}
)

// Config holds all refloop configuration.
type Config struct {
	Agent   AgentConfig   `mapstructure:"agent"`
	Run     RunConfig     `mapstructure:"run"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AgentConfig selects the AI provider.
type AgentConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RunConfig controls the pass loop.
type RunConfig struct {
	// Passes fixes the pass budget. Zero derives it from the backlog.
	Passes int `mapstructure:"passes"`
	// MaxFiles pins the scan cap. Zero grows it automatically.
	MaxFiles    int  `mapstructure:"max_files"`
	Orchestrate bool `mapstructure:"orchestrate"`
	MaxWorkers  int  `mapstructure:"max_workers"`
	Calibrate   bool `mapstructure:"calibrate"`
	Checkpoint  bool `mapstructure:"checkpoint"`
}

// VerifyConfig controls post-pass verification.
type VerifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Commands override the detected ones when set.
	Commands []string      `mapstructure:"commands"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig controls the run log file.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Path returns the config file path of targetDir.
func Path(targetDir string) string {
	return filepath.Join(targetDir, StateDirName, FileName)
}

// Load reads configuration for targetDir. configPath overrides the default
// location; a missing default file is not an error.
func Load(targetDir, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(targetDir, StateDirName))
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.provider", DefaultProvider)
	v.SetDefault("agent.model", "")
	v.SetDefault("agent.timeout", DefaultAgentTimeout.String())

	v.SetDefault("run.passes", 0)
	v.SetDefault("run.max_files", 0)
	v.SetDefault("run.orchestrate", false)
	v.SetDefault("run.max_workers", DefaultMaxWorkers)
	v.SetDefault("run.calibrate", true)
	v.SetDefault("run.checkpoint", true)

	v.SetDefault("verify.enabled", true)
	v.SetDefault("verify.commands", []string{})
	v.SetDefault("verify.timeout", DefaultVerifyTime.String())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if !slices.Contains(providers, c.Agent.Provider) {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, c.Agent.Provider)
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("%w: agent.timeout=%v", ErrInvalidTimeout, c.Agent.Timeout)
	}
	if c.Run.Passes < 0 || c.Run.Passes > MaxPasses {
		return fmt.Errorf("%w: %d (0..%d)", ErrInvalidPasses, c.Run.Passes, MaxPasses)
	}
	if c.Run.MaxFiles < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxFiles, c.Run.MaxFiles)
	}
	if c.Run.MaxWorkers < 1 || c.Run.MaxWorkers > MaxWorkersLimit {
		return fmt.Errorf("%w: %d (1..%d)", ErrInvalidMaxWorkers, c.Run.MaxWorkers, MaxWorkersLimit)
	}
	if c.Verify.Timeout <= 0 {
		return fmt.Errorf("%w: verify.timeout=%v", ErrInvalidTimeout, c.Verify.Timeout)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	return nil
}
