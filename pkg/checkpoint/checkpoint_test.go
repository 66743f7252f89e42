package checkpoint_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"refloop/pkg/backlog"
	"refloop/pkg/checkpoint"
)

func sample(target string) checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		TargetDir:     target,
		PlannedPasses: 3,
		NextPass:      2,
		MaxFiles:      20000,
		Scan:          backlog.RepoScan{TargetDir: target, ProjectShape: "single-package"},
		Backlog:       backlog.Backlog{MonolithCount: 1, Score: 8.25, Signature: "M[a.go:400]|C[]|D[]|K[]"},
		ExecutionSettings: &checkpoint.ExecutionSettings{
			Provider:    "codex",
			Orchestrate: true,
			MaxWorkers:  4,
			TimeoutMs:   60000,
		},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	target := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(target, ".refloop"))

	if err := store.Save(sample(target)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !store.Exists() {
		t.Fatal("checkpoint file missing after Save")
	}

	cp, err := store.Load(target)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.Version != checkpoint.Version {
		t.Errorf("Version = %d, want %d", cp.Version, checkpoint.Version)
	}
	if cp.NextPass != 2 || cp.PlannedPasses != 3 {
		t.Errorf("passes = %d/%d, want 2/3", cp.NextPass, cp.PlannedPasses)
	}
	if cp.ExecutionSettings == nil || cp.ExecutionSettings.Provider != "codex" || cp.ExecutionSettings.Timeout().Seconds() != 60 {
		t.Errorf("ExecutionSettings = %+v", cp.ExecutionSettings)
	}
	if cp.Backlog.Signature != "M[a.go:400]|C[]|D[]|K[]" {
		t.Errorf("Backlog = %+v", cp.Backlog)
	}
	if cp.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	leftovers, _ := filepath.Glob(filepath.Join(target, ".refloop", ".checkpoint-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	if _, err := store.Load("/anywhere"); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestValidate(t *testing.T) {
	target := t.TempDir()
	tests := []struct {
		name    string
		mutate  func(*checkpoint.Checkpoint)
		wantErr error
	}{
		{"valid", func(*checkpoint.Checkpoint) {}, nil},
		{"final pass boundary", func(cp *checkpoint.Checkpoint) { cp.NextPass = 4 }, nil},
		{"next pass beyond budget", func(cp *checkpoint.Checkpoint) { cp.PlannedPasses = 2; cp.NextPass = 4 }, checkpoint.ErrPassRange},
		{"next pass zero", func(cp *checkpoint.Checkpoint) { cp.NextPass = 0 }, checkpoint.ErrPassRange},
		{"future version", func(cp *checkpoint.Checkpoint) { cp.Version = 2 }, checkpoint.ErrVersion},
		{"other target", func(cp *checkpoint.Checkpoint) { cp.TargetDir = "/elsewhere" }, checkpoint.ErrTargetMismatch},
		{"scan of other target", func(cp *checkpoint.Checkpoint) { cp.Scan.TargetDir = "/elsewhere" }, checkpoint.ErrTargetMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := sample(target)
			cp.Version = checkpoint.Version
			tt.mutate(&cp)

			err := cp.Validate(target)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, checkpoint.ErrInvalid) {
				t.Errorf("err = %v, want %v wrapped in ErrInvalid", err, tt.wantErr)
			}
		})
	}
}

func TestStore_LoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store := checkpoint.NewStore(dir)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(dir); !errors.Is(err, checkpoint.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestStore_Clear(t *testing.T) {
	target := t.TempDir()
	store := checkpoint.NewStore(target)

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if err := store.Save(sample(target)); err != nil {
		t.Fatal(err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.Exists() {
		t.Error("checkpoint still present after Clear")
	}
}

func TestStore_SaveIsVersioned(t *testing.T) {
	target := t.TempDir()
	store := checkpoint.NewStore(target)
	cp := sample(target)
	cp.Version = 99
	if err := store.Save(cp); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"version": 1`) {
		t.Errorf("saved document not stamped with current version:\n%s", data)
	}
}
