package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"refloop/pkg/checkpoint"
)

// newResetCmd creates the "refloop reset" subcommand.
func newResetCmd(rf *rootFlags) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkpoint so the next run starts fresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rf.paths()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			store := checkpoint.NewStore(p.StateDir)
			existed := store.Exists()
			if err := store.Clear(); err != nil {
				return err
			}
			if existed {
				fmt.Fprintln(w, "Checkpoint removed.")
			} else {
				fmt.Fprintln(w, "No checkpoint to remove.")
			}

			if history {
				for _, suffix := range []string{"", "-wal", "-shm"} {
					if err := os.Remove(p.HistoryPath + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("remove history: %w", err)
					}
				}
				fmt.Fprintln(w, "Run history removed.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "also delete the run history database")

	return cmd
}
