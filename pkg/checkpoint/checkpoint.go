// Package checkpoint persists the resumable state of a multi-pass run as a
// versioned JSON document under the target repository.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"refloop/pkg/backlog"
)

// Version is the current checkpoint format version. Documents with any
// other version are ignored.
const Version = 1

// FileName is the checkpoint file name inside the state directory.
const FileName = "checkpoint.json"

const dirPerm = 0o750

// Sentinel errors. Every validation failure also matches ErrInvalid.
var (
	ErrNotFound       = errors.New("no checkpoint")
	ErrInvalid        = errors.New("invalid checkpoint")
	ErrVersion        = errors.New("unsupported checkpoint version")
	ErrTargetMismatch = errors.New("checkpoint belongs to another directory")
	ErrPassRange      = errors.New("checkpoint pass counters out of range")
)

// ExecutionSettings are the provider and scheduling choices of the run
// that wrote the checkpoint. A resumed run reuses them as-is.
type ExecutionSettings struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model,omitempty"`
	Orchestrate    bool     `json:"orchestrate"`
	MaxWorkers     int      `json:"maxWorkers"`
	TimeoutMs      int64    `json:"timeoutMs"`
	Calibrate      bool     `json:"calibrate"`
	VerifyCommands []string `json:"verifyCommands,omitempty"`
}

// Timeout returns TimeoutMs as a duration.
func (s ExecutionSettings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// Checkpoint is the persisted run state.
type Checkpoint struct {
	Version           int                `json:"version"`
	RunID             string             `json:"runId,omitempty"`
	TargetDir         string             `json:"targetDir"`
	PlannedPasses     int                `json:"plannedPasses"`
	NextPass          int                `json:"nextPass"`
	MaxFiles          int                `json:"maxFiles"`
	MaxFilesPinned    bool               `json:"maxFilesPinned"`
	BudgetFixed       bool               `json:"budgetFixed"`
	StagnantPasses    int                `json:"stagnantPasses"`
	Scan              backlog.RepoScan   `json:"scan"`
	Backlog           backlog.Backlog    `json:"backlog"`
	ExecutionSettings *ExecutionSettings `json:"executionSettings,omitempty"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Validate checks cp against the directory it is being resumed in.
func (cp *Checkpoint) Validate(targetDir string) error {
	if cp.Version != Version {
		return fmt.Errorf("%w: %w: %d", ErrInvalid, ErrVersion, cp.Version)
	}
	want := cleanAbs(targetDir)
	if cleanAbs(cp.TargetDir) != want {
		return fmt.Errorf("%w: %w: %s", ErrInvalid, ErrTargetMismatch, cp.TargetDir)
	}
	if cp.Scan.TargetDir != "" && cleanAbs(cp.Scan.TargetDir) != want {
		return fmt.Errorf("%w: %w: scan of %s", ErrInvalid, ErrTargetMismatch, cp.Scan.TargetDir)
	}
	if cp.PlannedPasses < 1 || cp.NextPass < 1 || cp.NextPass > cp.PlannedPasses+1 {
		return fmt.Errorf("%w: %w: nextPass=%d plannedPasses=%d", ErrInvalid, ErrPassRange, cp.NextPass, cp.PlannedPasses)
	}
	return nil
}

func cleanAbs(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return filepath.Clean(abs)
	}
	return filepath.Clean(p)
}

// Store reads and writes the checkpoint file of one target directory.
type Store struct {
	path string
	now  func() time.Time
}

// NewStore returns a Store for stateDir/checkpoint.json.
func NewStore(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, FileName), now: time.Now}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a checkpoint file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes cp atomically, stamping Version and UpdatedAt.
func (s *Store) Save(cp Checkpoint) error {
	cp.Version = Version
	cp.UpdatedAt = s.now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirPerm); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	return atomicWrite(s.path, data)
}

// Read returns the stored checkpoint without validating it.
func (s *Store) Read() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalid, err)
	}
	return &cp, nil
}

// Load reads and validates the checkpoint for targetDir. It returns
// ErrNotFound when there is none and an ErrInvalid error when the stored
// document cannot be resumed.
func (s *Store) Load(targetDir string) (*Checkpoint, error) {
	cp, err := s.Read()
	if err != nil {
		return nil, err
	}
	if err := cp.Validate(targetDir); err != nil {
		return nil, err
	}
	return cp, nil
}

// Clear removes the checkpoint. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// atomicWrite writes content to a temp file in the same directory, syncs
// it, re-reads it as JSON and renames it over path.
func atomicWrite(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	written, err := os.ReadFile(tmpName) //nolint:gosec // temp file we just created
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if !json.Valid(written) {
		return errors.New("checkpoint validation failed: written file is not valid JSON")
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
