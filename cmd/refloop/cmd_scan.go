package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"refloop/pkg/backlog"
	"refloop/pkg/langprofile"
	"refloop/pkg/scan"
)

// newScanCmd creates the "refloop scan" subcommand.
func newScanCmd(rf *rootFlags) *cobra.Command {
	var (
		maxFiles int
		asJSON   bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print the refactor backlog without calling an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rf.paths()
			if err != nil {
				return err
			}
			res, err := scan.New(nil).Scan(cmd.Context(), p.TargetDir, maxFiles)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			det := langprofile.Detect(p.TargetDir)
			rs := backlog.FromScan(res, backlog.Meta{TechStack: det.Stack, ProjectShape: det.Shape})

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rs)
			}
			renderScan(cmd.OutOrStdout(), newStyles(DefaultTheme()), rs, limit)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", scan.DefaultMaxFiles, "maximum source files to scan")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scan as JSON")
	cmd.Flags().IntVar(&limit, "limit", 10, "rows shown per category (0 shows all)")

	return cmd
}

type scanRow struct {
	category string
	path     string
	lines    int
	score    float64
	notes    string
}

func scanRows(rs backlog.RepoScan) []scanRow {
	var rows []scanRow
	for _, f := range rs.MonolithCandidates {
		rows = append(rows, scanRow{backlog.Monolith, f.Path, f.LineCount, backlog.MonolithScore(f),
			fmt.Sprintf("%d functions, %d exports", f.FunctionCount, f.ExportCount)})
	}
	for _, h := range rs.CouplingCandidates {
		rows = append(rows, scanRow{backlog.Coupling, h.Path, h.LineCount, h.Score, strings.Join(h.Reasons, "; ")})
	}
	for _, h := range rs.DebtCandidates {
		rows = append(rows, scanRow{backlog.Debt, h.Path, h.LineCount, h.Score, strings.Join(h.Reasons, "; ")})
	}
	for _, f := range rs.CommentCleanupCandidates {
		rows = append(rows, scanRow{backlog.Comment, f.Path, f.LineCount, backlog.CommentScore(f),
			fmt.Sprintf("%d of %d comment lines low-signal", f.LowSignalCommentLines, f.CommentLines)})
	}
	return rows
}

// renderScan prints the scan header and a candidate table.
func renderScan(w io.Writer, st styles, rs backlog.RepoScan, limit int) {
	b := backlog.Summarize(rs)

	fmt.Fprintln(w, st.title.Render("Scan of "+rs.TargetDir))
	fmt.Fprintf(w, "%s %s files, %s lines\n", st.label.Render("Scanned:"),
		humanize.Comma(int64(rs.ScannedSourceFiles)), humanize.Comma(int64(rs.ScannedTotalLines)))
	if rs.ReachedFileCap {
		fmt.Fprintln(w, st.warning.Render("warning: file cap reached; raise --max-files for a full view"))
	}
	stack := "unknown"
	if len(rs.TechStack) > 0 {
		stack = strings.Join(rs.TechStack, ", ")
	}
	fmt.Fprintf(w, "%s %s (%s)\n", st.label.Render("Stack:"), stack, rs.ProjectShape)
	fmt.Fprintf(w, "%s %s\n", st.label.Render("Backlog:"), b)
	fmt.Fprintf(w, "%s %d actionable, %d passes planned\n", st.label.Render("Plan:"),
		backlog.ActionableCount(rs), backlog.AdaptivePassCount(b))

	rows := scanRows(rs)
	if len(rows) == 0 {
		return
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"Category", "Path", "Lines", "Score", "Notes"})

	shown := map[string]int{}
	for _, r := range rows {
		if limit > 0 && shown[r.category] >= limit {
			continue
		}
		shown[r.category]++
		tbl.AppendRow(table.Row{r.category, r.path, humanize.Comma(int64(r.lines)), fmt.Sprintf("%.2f", r.score), r.notes})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d candidates", len(rows))})

	fmt.Fprintln(w)
	fmt.Fprintln(w, tbl.Render())
}
