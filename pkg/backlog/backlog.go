package backlog

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"refloop/pkg/scan"
)

// SameScoreEpsilon is the score tolerance under which two backlogs with the
// same signature are considered unchanged.
const SameScoreEpsilon = 0.05

// MaxAdaptivePasses bounds the derived pass budget.
const MaxAdaptivePasses = 12

// Backlog is the aggregate fingerprint of a RepoScan.
type Backlog struct {
	MonolithCount int     `json:"monolithCount"`
	CouplingCount int     `json:"couplingCount"`
	DebtCount     int     `json:"debtCount"`
	CommentCount  int     `json:"commentCount"`
	Score         float64 `json:"score"`
	Signature     string  `json:"signature"`
}

// Total is the number of candidates across all categories.
func (b Backlog) Total() int {
	return b.MonolithCount + b.CouplingCount + b.DebtCount + b.CommentCount
}

// Empty reports a backlog with no candidates.
func (b Backlog) Empty() bool {
	return b.Total() == 0
}

// String names the remaining categories and their counts.
func (b Backlog) String() string {
	if b.Empty() {
		return "empty backlog"
	}
	var parts []string
	for _, c := range []struct {
		name  string
		count int
	}{
		{Monolith, b.MonolithCount},
		{Coupling, b.CouplingCount},
		{Debt, b.DebtCount},
		{Comment, b.CommentCount},
	} {
		if c.count > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", c.name, c.count))
		}
	}
	return strings.Join(parts, ", ") + fmt.Sprintf(" (score %.2f)", b.Score)
}

// Summarize derives the backlog of rs. The signature is built from sorted
// path:metric tuples so input order never affects it.
func Summarize(rs RepoScan) Backlog {
	b := Backlog{
		MonolithCount: len(rs.MonolithCandidates),
		CouplingCount: len(rs.CouplingCandidates),
		DebtCount:     len(rs.DebtCandidates),
		CommentCount:  len(rs.CommentCleanupCandidates),
	}

	var score float64
	monolith := make([]string, 0, len(rs.MonolithCandidates))
	for _, f := range rs.MonolithCandidates {
		score += MonolithScore(f)
		monolith = append(monolith, fmt.Sprintf("%s:%d", f.Path, f.LineCount))
	}
	coupling := make([]string, 0, len(rs.CouplingCandidates))
	for _, h := range rs.CouplingCandidates {
		score += h.Score
		coupling = append(coupling, fmt.Sprintf("%s:%.2f", h.Path, h.Score))
	}
	debt := make([]string, 0, len(rs.DebtCandidates))
	for _, h := range rs.DebtCandidates {
		score += h.Score
		debt = append(debt, fmt.Sprintf("%s:%d", h.Path, h.TodoCount+h.LowSignalCommentLines))
	}
	comment := make([]string, 0, len(rs.CommentCleanupCandidates))
	for _, f := range rs.CommentCleanupCandidates {
		score += CommentScore(f)
		comment = append(comment, fmt.Sprintf("%s:%d", f.Path, f.LowSignalCommentLines))
	}

	b.Score = round2(score)
	b.Signature = strings.Join([]string{
		signaturePart("M", monolith),
		signaturePart("C", coupling),
		signaturePart("D", debt),
		signaturePart("K", comment),
	}, "|")
	return b
}

func signaturePart(tag string, tuples []string) string {
	sort.Strings(tuples)
	return tag + "[" + strings.Join(tuples, ",") + "]"
}

// Same reports whether two backlogs describe the same remaining work.
func Same(a, b Backlog) bool {
	return a.Signature == b.Signature && math.Abs(a.Score-b.Score) < SameScoreEpsilon
}

// Actionable reports whether rs holds real refactor work: a monolith past
// the stricter line threshold, a non-facade coupling hotspot, or any debt
// or comment candidate.
func Actionable(rs RepoScan) bool {
	return ActionableCount(rs) > 0
}

// ActionableCount counts the candidates that make rs actionable.
func ActionableCount(rs RepoScan) int {
	n := len(rs.DebtCandidates) + len(rs.CommentCleanupCandidates)
	for _, f := range rs.MonolithCandidates {
		if f.LineCount >= ActionableMonolithLines {
			n++
		}
	}
	for _, h := range rs.CouplingCandidates {
		if !IsFacade(h.FileInsight) {
			n++
		}
	}
	return n
}

// AdaptivePassCount derives a pass budget from backlog size:
// min(12, max(1, ceil((3m + 2c + d + cm) / 4))).
func AdaptivePassCount(b Backlog) int {
	weighted := 3*b.MonolithCount + 2*b.CouplingCount + b.DebtCount + b.CommentCount
	n := int(math.Ceil(float64(weighted) / 4))
	return min(MaxAdaptivePasses, max(1, n))
}

// Paths returns the candidate paths of one category in list order.
func (rs RepoScan) Paths(category string) []string {
	var out []string
	switch category {
	case Monolith:
		for _, f := range rs.MonolithCandidates {
			out = append(out, f.Path)
		}
	case Coupling:
		for _, h := range rs.CouplingCandidates {
			out = append(out, h.Path)
		}
	case Debt:
		for _, h := range rs.DebtCandidates {
			out = append(out, h.Path)
		}
	case Comment:
		for _, f := range rs.CommentCleanupCandidates {
			out = append(out, f.Path)
		}
	}
	return out
}

// Insight returns the metrics of the candidate at position i of category.
func (rs RepoScan) Insight(category string, i int) scan.FileInsight {
	switch category {
	case Monolith:
		return rs.MonolithCandidates[i]
	case Coupling:
		return rs.CouplingCandidates[i].FileInsight
	case Debt:
		return rs.DebtCandidates[i].FileInsight
	default:
		return rs.CommentCleanupCandidates[i]
	}
}

// Filter returns a copy of rs keeping only candidates for which keep
// returns true. rs is not modified.
func (rs RepoScan) Filter(keep func(category, path string) bool) RepoScan {
	out := rs
	out.MonolithCandidates = nil
	for _, f := range rs.MonolithCandidates {
		if keep(Monolith, f.Path) {
			out.MonolithCandidates = append(out.MonolithCandidates, f)
		}
	}
	out.CouplingCandidates = nil
	for _, h := range rs.CouplingCandidates {
		if keep(Coupling, h.Path) {
			out.CouplingCandidates = append(out.CouplingCandidates, h)
		}
	}
	out.DebtCandidates = nil
	for _, h := range rs.DebtCandidates {
		if keep(Debt, h.Path) {
			out.DebtCandidates = append(out.DebtCandidates, h)
		}
	}
	out.CommentCleanupCandidates = nil
	for _, f := range rs.CommentCleanupCandidates {
		if keep(Comment, f.Path) {
			out.CommentCleanupCandidates = append(out.CommentCleanupCandidates, f)
		}
	}
	return out
}
