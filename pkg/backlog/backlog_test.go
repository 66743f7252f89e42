package backlog_test

import (
	"fmt"
	"testing"

	"refloop/pkg/backlog"
	"refloop/pkg/scan"
)

func bigModule(path string, lines int) scan.FileInsight {
	return scan.FileInsight{Path: path, LineCount: lines, FunctionCount: 20, ExportCount: 1}
}

func facade(path string) scan.FileInsight {
	return scan.FileInsight{Path: path, LineCount: 30, FanIn: 6, ExportCount: 5, InternalImportCount: 1}
}

func TestClassify_MonolithThresholds(t *testing.T) {
	files := []scan.FileInsight{
		bigModule("big.go", 400),
		// Large but cohesive: few declarations, no imports, no dependents.
		{Path: "table.go", LineCount: 400, FunctionCount: 2},
		// Busy but under the line floor.
		{Path: "small.go", LineCount: 319, FunctionCount: 40, FanIn: 5},
	}

	rs := backlog.Classify("/repo", files, backlog.Meta{})

	if len(rs.MonolithCandidates) != 1 || rs.MonolithCandidates[0].Path != "big.go" {
		t.Fatalf("monolith candidates = %+v, want only big.go", rs.MonolithCandidates)
	}
	if got := backlog.MonolithScore(files[1]); got >= backlog.MonolithScoreThreshold {
		t.Errorf("cohesive file score = %.2f, want below threshold", got)
	}
}

func TestClassify_FacadeOnlyIsNotActionable(t *testing.T) {
	rs := backlog.Classify("/repo", []scan.FileInsight{facade("src/index.ts")}, backlog.Meta{})
	if len(rs.CouplingCandidates) != 0 {
		t.Errorf("facade classified as coupling hotspot: %+v", rs.CouplingCandidates)
	}
	if backlog.Actionable(rs) {
		t.Error("facade-only scan must not be actionable")
	}

	// A facade that reached the list through another path is still excluded.
	injected := backlog.RepoScan{CouplingCandidates: []backlog.Hotspot{{FileInsight: facade("src/index.ts"), Score: 9}}}
	if backlog.Actionable(injected) {
		t.Error("scan whose only coupling candidate is a facade must not be actionable")
	}
}

func TestClassify_CouplingDebtAndComment(t *testing.T) {
	files := []scan.FileInsight{
		{Path: "hub.go", LineCount: 200, FanIn: 3, FunctionCount: 6},
		{Path: "wires.go", LineCount: 150, InternalImportCount: 9, FunctionCount: 3},
		{Path: "todo.go", LineCount: 50, TodoCount: 1},
		{Path: "noisy.go", LineCount: 80, CommentLines: 10, LowSignalCommentLines: 4},
		{Path: "ratio.go", LineCount: 80, CommentLines: 6, LowSignalCommentLines: 3},
		{Path: "clean.go", LineCount: 80, CommentLines: 20, LowSignalCommentLines: 2},
	}

	rs := backlog.Classify("/repo", files, backlog.Meta{TechStack: []string{"go"}})

	if got := rs.Paths(backlog.Coupling); len(got) != 2 || got[0] != "wires.go" || got[1] != "hub.go" {
		t.Errorf("coupling = %v, want [wires.go hub.go]", got)
	}
	if got := rs.Paths(backlog.Debt); len(got) != 3 {
		t.Errorf("debt = %v, want todo.go, noisy.go and ratio.go", got)
	}
	if got := rs.Paths(backlog.Comment); len(got) != 2 || got[0] != "noisy.go" || got[1] != "ratio.go" {
		t.Errorf("comment = %v, want [noisy.go ratio.go]", got)
	}
	if rs.ProjectShape != "unknown" {
		t.Errorf("ProjectShape = %q, want unknown", rs.ProjectShape)
	}
	if rs.ScannedSourceFiles != 6 || rs.ScannedTotalLines != 640 {
		t.Errorf("scanned files=%d lines=%d, want 6/640", rs.ScannedSourceFiles, rs.ScannedTotalLines)
	}
}

func TestClassify_CapsAndTieBreak(t *testing.T) {
	var files []scan.FileInsight
	for i := range 30 {
		files = append(files, scan.FileInsight{Path: fmt.Sprintf("f%02d.go", 29-i), LineCount: 10, TodoCount: 1})
	}

	rs := backlog.Classify("/repo", files, backlog.Meta{})

	if len(rs.DebtCandidates) != backlog.MaxDebt {
		t.Fatalf("debt candidates = %d, want %d", len(rs.DebtCandidates), backlog.MaxDebt)
	}
	if rs.DebtCandidates[0].Path != "f00.go" || rs.DebtCandidates[15].Path != "f15.go" {
		t.Errorf("equal scores must sort by path: first=%s last=%s", rs.DebtCandidates[0].Path, rs.DebtCandidates[15].Path)
	}
}

func TestSummarize_SignatureIgnoresInputOrder(t *testing.T) {
	files := []scan.FileInsight{
		bigModule("a.go", 500),
		bigModule("b.go", 500),
		{Path: "c.go", LineCount: 40, TodoCount: 2},
		{Path: "d.go", LineCount: 40, FanIn: 4},
	}
	reversed := []scan.FileInsight{files[3], files[2], files[1], files[0]}

	a := backlog.Summarize(backlog.Classify("/repo", files, backlog.Meta{}))
	b := backlog.Summarize(backlog.Classify("/repo", reversed, backlog.Meta{}))

	if a.Signature != b.Signature {
		t.Errorf("signatures differ:\n%s\n%s", a.Signature, b.Signature)
	}
	if !backlog.Same(a, b) {
		t.Error("identical scans must produce the same backlog")
	}

	// Hand-built scan with candidates in a different order.
	rs := backlog.Classify("/repo", files, backlog.Meta{})
	rs.MonolithCandidates[0], rs.MonolithCandidates[1] = rs.MonolithCandidates[1], rs.MonolithCandidates[0]
	if got := backlog.Summarize(rs).Signature; got != a.Signature {
		t.Errorf("swapped candidate order changed signature: %s", got)
	}
}

func TestSame_ScoreTolerance(t *testing.T) {
	a := backlog.Backlog{Signature: "M[a.go:400]", Score: 10}
	tests := []struct {
		name string
		b    backlog.Backlog
		want bool
	}{
		{"identical", backlog.Backlog{Signature: "M[a.go:400]", Score: 10}, true},
		{"within epsilon", backlog.Backlog{Signature: "M[a.go:400]", Score: 10.04}, true},
		{"score moved", backlog.Backlog{Signature: "M[a.go:400]", Score: 10.06}, false},
		{"signature moved", backlog.Backlog{Signature: "M[a.go:380]", Score: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backlog.Same(a, tt.b); got != tt.want {
				t.Errorf("Same = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActionable_MonolithNeedsStricterLineCount(t *testing.T) {
	under := backlog.Classify("/repo", []scan.FileInsight{bigModule("m.go", 340)}, backlog.Meta{})
	if len(under.MonolithCandidates) != 1 {
		t.Fatalf("expected 340-line module to be a monolith candidate")
	}
	if backlog.Actionable(under) {
		t.Error("340-line monolith alone must not be actionable")
	}

	over := backlog.Classify("/repo", []scan.FileInsight{bigModule("m.go", 360)}, backlog.Meta{})
	if !backlog.Actionable(over) {
		t.Error("360-line monolith must be actionable")
	}
}

func TestAdaptivePassCount(t *testing.T) {
	tests := []struct {
		b    backlog.Backlog
		want int
	}{
		{backlog.Backlog{}, 1},
		{backlog.Backlog{MonolithCount: 1}, 1},
		{backlog.Backlog{MonolithCount: 4}, 3},
		{backlog.Backlog{MonolithCount: 1, CouplingCount: 1, DebtCount: 1, CommentCount: 1}, 2},
		{backlog.Backlog{MonolithCount: 24, CouplingCount: 16}, 12},
	}
	for _, tt := range tests {
		if got := backlog.AdaptivePassCount(tt.b); got != tt.want {
			t.Errorf("AdaptivePassCount(%+v) = %d, want %d", tt.b, got, tt.want)
		}
	}
}

func TestAdaptivePassCount_MonotoneAndBounded(t *testing.T) {
	for m := range 10 {
		for c := range 10 {
			for d := range 10 {
				base := backlog.Backlog{MonolithCount: m, CouplingCount: c, DebtCount: d, CommentCount: d}
				n := backlog.AdaptivePassCount(base)
				if n < 1 || n > backlog.MaxAdaptivePasses {
					t.Fatalf("AdaptivePassCount(%+v) = %d out of bounds", base, n)
				}
				for _, grown := range []backlog.Backlog{
					{MonolithCount: m + 1, CouplingCount: c, DebtCount: d, CommentCount: d},
					{MonolithCount: m, CouplingCount: c + 1, DebtCount: d, CommentCount: d},
					{MonolithCount: m, CouplingCount: c, DebtCount: d + 1, CommentCount: d},
					{MonolithCount: m, CouplingCount: c, DebtCount: d, CommentCount: d + 1},
				} {
					if backlog.AdaptivePassCount(grown) < n {
						t.Fatalf("AdaptivePassCount decreased from %+v to %+v", base, grown)
					}
				}
			}
		}
	}
}

func TestRepoScan_FilterLeavesOriginalIntact(t *testing.T) {
	rs := backlog.Classify("/repo", []scan.FileInsight{
		{Path: "a.go", LineCount: 10, TodoCount: 1},
		{Path: "b.go", LineCount: 10, TodoCount: 1},
	}, backlog.Meta{})

	filtered := rs.Filter(func(_, path string) bool { return path == "a.go" })

	if len(filtered.DebtCandidates) != 1 || filtered.DebtCandidates[0].Path != "a.go" {
		t.Errorf("filtered debt = %v", filtered.Paths(backlog.Debt))
	}
	if len(rs.DebtCandidates) != 2 {
		t.Errorf("original mutated: %v", rs.Paths(backlog.Debt))
	}
}

func TestBacklog_String(t *testing.T) {
	b := backlog.Backlog{MonolithCount: 2, DebtCount: 1, Score: 12.5}
	if got, want := b.String(), "monolith=2, debt=1 (score 12.50)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (backlog.Backlog{}).String(); got != "empty backlog" {
		t.Errorf("empty String() = %q", got)
	}
}
