package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"refloop/pkg/eventlog"
)

// historyConfig holds configuration for the history command.
type historyConfig struct {
	limit int
	runID string
	typ   string
	all   bool
}

// newHistoryCmd creates the "refloop history" subcommand.
func newHistoryCmd(rf *rootFlags) *cobra.Command {
	var cfg historyConfig

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs and passes",
		Long:  "Displays events from the run history database, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rf.paths()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			r, err := eventlog.NewReader(p.HistoryPath)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(w, "No run history yet.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer r.Close()

			opts := eventlog.QueryOpts{RunID: cfg.runID, Type: cfg.typ, Limit: cfg.limit}
			if !cfg.all {
				opts.TargetDir = p.TargetDir
			}
			events, err := r.Query(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printHistory(w, events)
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.limit, "limit", 30, "number of events to show (0 shows all)")
	cmd.Flags().StringVar(&cfg.runID, "run", "", "only events of this run id")
	cmd.Flags().StringVar(&cfg.typ, "type", "", "only events of this type (run_start, calibration, pass, verify, run_end)")
	cmd.Flags().BoolVar(&cfg.all, "all", false, "include events of every target repository")

	return cmd
}

func printHistory(w io.Writer, events []eventlog.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No matching events.")
		return
	}
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.AppendHeader(table.Row{"When", "Run", "Event", "Pass", "Status", "Backlog"})
	for _, e := range events {
		pass := ""
		if e.Pass > 0 {
			pass = fmt.Sprintf("%d/%d", e.Pass, e.PlannedPasses)
		}
		tbl.AppendRow(table.Row{humanize.Time(e.CreatedAt), shortID(e.RunID), e.Type, pass, e.Status, e.Backlog})
	}
	fmt.Fprintln(w, tbl.Render())
}
