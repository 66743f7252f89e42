// Package logging builds the slog loggers used by refloop. Run logs go to
// <target>/.refloop/logs/refloop.log; the console only gets progress lines.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Log file location inside the state directory.
const (
	DirName  = "logs"
	FileName = "refloop.log"
)

// Options configures a logger.
type Options struct {
	Level  slog.Level
	Format string // "text" or "json"
}

// NewLogger returns a logger writing to w.
func NewLogger(w io.Writer, opts Options) *slog.Logger {
	ho := &slog.HandlerOptions{Level: opts.Level}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// NewFileLogger opens path for appending and returns a logger writing to it.
// The caller closes the returned Closer.
func NewFileLogger(path string, opts Options) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is under the state dir
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewLogger(f, opts), f, nil
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// LevelFromString parses a level name. Unknown names map to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Path returns the run log path under stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, DirName, FileName)
}

// Factory hands out loggers for one run and closes their files.
type Factory struct {
	stateDir string
	opts     Options
	closers  []io.Closer
}

// NewFactory returns a Factory writing under stateDir. An empty stateDir
// produces discard loggers.
func NewFactory(stateDir string, opts Options) *Factory {
	return &Factory{stateDir: stateDir, opts: opts}
}

// RunLogger returns the file logger for a run, tagged with its run id. When
// the file cannot be opened the logger falls back to discard and the error
// is returned alongside it.
func (f *Factory) RunLogger(runID string) (*slog.Logger, error) {
	if f.stateDir == "" {
		return NewDiscardLogger(), nil
	}
	logger, c, err := NewFileLogger(Path(f.stateDir), f.opts)
	if err != nil {
		return NewDiscardLogger(), err
	}
	f.closers = append(f.closers, c)
	if runID != "" {
		logger = logger.With("run", runID)
	}
	return logger, nil
}

// Close closes every file opened by the factory.
func (f *Factory) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	f.closers = nil
	return errors.Join(errs...)
}
