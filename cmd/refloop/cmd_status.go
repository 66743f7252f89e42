package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"refloop/pkg/checkpoint"
)

const watchDebounce = 150 * time.Millisecond

// newStatusCmd creates the "refloop status" subcommand.
func newStatusCmd(rf *rootFlags) *cobra.Command {
	var (
		watch  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint of an interrupted or running refactor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rf.paths()
			if err != nil {
				return err
			}
			store := checkpoint.NewStore(p.StateDir)
			w := cmd.OutOrStdout()
			show := func() error { return printStatus(w, newStyles(DefaultTheme()), store, p.TargetDir, asJSON) }

			if err := show(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchCheckpoint(cmd.Context(), store.Path(), func() {
				fmt.Fprintln(w)
				if err := show(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "status: %v\n", err)
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print again whenever the checkpoint changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw checkpoint")

	return cmd
}

func printStatus(w io.Writer, st styles, store *checkpoint.Store, target string, asJSON bool) error {
	cp, err := store.Read()
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		fmt.Fprintf(w, "No checkpoint for %s.\n", target)
		return nil
	case errors.Is(err, checkpoint.ErrInvalid):
		fmt.Fprintln(w, st.warning.Render("Checkpoint unreadable; the next run starts fresh: "+err.Error()))
		return nil
	case err != nil:
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	}

	fmt.Fprintln(w, st.title.Render("Checkpoint "+shortID(cp.RunID)))
	fmt.Fprintf(w, "%s %d of %d\n", st.label.Render("Next pass:"), cp.NextPass, cp.PlannedPasses)
	fmt.Fprintf(w, "%s %s\n", st.label.Render("Backlog:"), cp.Backlog)
	fmt.Fprintf(w, "%s %s\n", st.label.Render("Max files:"), humanize.Comma(int64(cp.MaxFiles)))
	if s := cp.ExecutionSettings; s != nil {
		mode := "single call"
		if s.Orchestrate {
			mode = fmt.Sprintf("orchestrated, %d workers", s.MaxWorkers)
		}
		model := s.Model
		if model == "" {
			model = "default model"
		}
		fmt.Fprintf(w, "%s %s (%s), %s\n", st.label.Render("Agent:"), s.Provider, model, mode)
	}
	if cp.StagnantPasses > 0 {
		fmt.Fprintln(w, st.warning.Render(fmt.Sprintf("%d unchanged pass(es) in a row", cp.StagnantPasses)))
	}
	fmt.Fprintf(w, "%s %s\n", st.label.Render("Updated:"), humanize.Time(cp.UpdatedAt))
	if err := cp.Validate(target); err != nil {
		fmt.Fprintln(w, st.warning.Render("not resumable: "+err.Error()))
	}
	return nil
}

// watchCheckpoint calls onChange after each settled burst of changes to
// path until ctx is done. The parent directory is created if missing so a
// watch can start before the first run.
func watchCheckpoint(ctx context.Context, path string, onChange func()) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(path)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			timer.Reset(watchDebounce)
		case <-timer.C:
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
}
