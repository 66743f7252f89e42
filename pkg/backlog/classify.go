// Package backlog turns scan metrics into scored refactor candidates and an
// aggregate, fingerprinted backlog. Everything here is a pure function of
// its input so that an unchanged repository always yields the same backlog.
package backlog

import (
	"fmt"
	"math"
	"sort"

	"refloop/pkg/scan"
)

// Candidate categories.
const (
	Monolith = "monolith"
	Coupling = "coupling"
	Debt     = "debt"
	Comment  = "comment"
)

// Categories lists every category in reporting order.
var Categories = []string{Monolith, Coupling, Debt, Comment}

// Classification thresholds.
const (
	MonolithMinLines        = 320
	MonolithScoreThreshold  = 6.0
	ActionableMonolithLines = 360

	MaxMonolith = 24
	MaxCoupling = 16
	MaxDebt     = 16
	MaxComment  = 24

	LargestFilesShown = 10
)

// Hotspot is a coupling or debt candidate with its score and rationale.
type Hotspot struct {
	scan.FileInsight
	Score           float64  `json:"score"`
	Reasons         []string `json:"reasons"`
	SplitHypothesis string   `json:"splitHypothesis"`
}

// RepoScan is one classified view of the target repository. A new value is
// produced by every scan; holders never edit one in place.
type RepoScan struct {
	TargetDir                string             `json:"targetDir"`
	TechStack                []string           `json:"techStack"`
	ProjectShape             string             `json:"projectShape"`
	ScannedSourceFiles       int                `json:"scannedSourceFiles"`
	ScannedTotalLines        int                `json:"scannedTotalLines"`
	ReachedFileCap           bool               `json:"reachedFileCap"`
	LargestFiles             []scan.FileInsight `json:"largestFiles"`
	MonolithCandidates       []scan.FileInsight `json:"monolithCandidates"`
	CouplingCandidates       []Hotspot          `json:"couplingCandidates"`
	DebtCandidates           []Hotspot          `json:"debtCandidates"`
	CommentCleanupCandidates []scan.FileInsight `json:"commentCleanupCandidates"`
}

// Meta carries the repository-level facts that are not per-file metrics.
type Meta struct {
	TechStack    []string
	ProjectShape string
}

// FromScan classifies a scanner result.
func FromScan(res *scan.Result, meta Meta) RepoScan {
	rs := Classify(res.Root, res.Files, meta)
	rs.ReachedFileCap = res.ReachedFileCap
	rs.LargestFiles = res.Largest(LargestFilesShown)
	return rs
}

// Classify builds the candidate lists for files. Each list is capped and
// ordered by score desc, path asc.
func Classify(targetDir string, files []scan.FileInsight, meta Meta) RepoScan {
	rs := RepoScan{
		TargetDir:          targetDir,
		TechStack:          meta.TechStack,
		ProjectShape:       meta.ProjectShape,
		ScannedSourceFiles: len(files),
	}
	if rs.ProjectShape == "" {
		rs.ProjectShape = "unknown"
	}

	var monolith, comment []scored
	for _, f := range files {
		rs.ScannedTotalLines += f.LineCount

		if f.LineCount >= MonolithMinLines {
			if s := MonolithScore(f); s >= MonolithScoreThreshold {
				monolith = append(monolith, scored{f, s})
			}
		}
		if IsCouplingHotspot(f) {
			rs.CouplingCandidates = append(rs.CouplingCandidates, couplingHotspot(f))
		}
		if f.TodoCount > 0 || f.LowSignalCommentLines >= 3 {
			rs.DebtCandidates = append(rs.DebtCandidates, debtHotspot(f))
		}
		if NeedsCommentCleanup(f) {
			comment = append(comment, scored{f, CommentScore(f)})
		}
	}

	rs.MonolithCandidates = topFiles(monolith, MaxMonolith)
	rs.CommentCleanupCandidates = topFiles(comment, MaxComment)
	rs.CouplingCandidates = topHotspots(rs.CouplingCandidates, MaxCoupling)
	rs.DebtCandidates = topHotspots(rs.DebtCandidates, MaxDebt)
	return rs
}

// MonolithScore is linePressure + structurePressure + debtPressure, minus
// penalties for large files that read as one cohesive module.
func MonolithScore(f scan.FileInsight) float64 {
	linePressure := float64(f.LineCount) / 100
	structurePressure := 0.9*float64(f.InternalImportCount) +
		1.5*float64(f.FanIn) +
		0.25*float64(f.ExportCount) +
		0.35*float64(f.FunctionCount) +
		1.2*float64(f.ClassCount)
	debtPressure := 1.2*float64(f.TodoCount) + 0.5*float64(f.LowSignalCommentLines)

	score := linePressure + structurePressure + debtPressure
	if f.ExportCount <= 2 && f.InternalImportCount <= 2 && f.FanIn <= 1 {
		score -= 3
		if f.TodoCount == 0 && lowBranching(f) {
			score -= 2
		}
	}
	return round2(score)
}

// lowBranching reports few declarations relative to size.
func lowBranching(f scan.FileInsight) bool {
	return float64(f.FunctionCount+f.ClassCount) <= float64(f.LineCount)/60
}

// IsFacade reports a pure re-export module: high fan-in is its job.
func IsFacade(f scan.FileInsight) bool {
	return f.InternalImportCount <= 1 &&
		f.FunctionCount <= 1 &&
		f.ClassCount == 0 &&
		f.TodoCount == 0 &&
		f.ExportCount >= 2 &&
		f.LineCount <= 240
}

// IsCouplingHotspot applies the coupling rule, excluding facades.
func IsCouplingHotspot(f scan.FileInsight) bool {
	if f.FanIn < 2 && f.InternalImportCount < 9 && f.ExportCount < 8 {
		return false
	}
	return !IsFacade(f)
}

// NeedsCommentCleanup applies the comment-cleanup rule.
func NeedsCommentCleanup(f scan.FileInsight) bool {
	if f.CommentLines < 6 {
		return false
	}
	return f.LowSignalCommentLines >= 4 || lowSignalRatio(f) >= 0.35
}

func lowSignalRatio(f scan.FileInsight) float64 {
	if f.CommentLines == 0 {
		return 0
	}
	return float64(f.LowSignalCommentLines) / float64(f.CommentLines)
}

// CouplingScore weighs dependents above dependencies above surface.
func CouplingScore(f scan.FileInsight) float64 {
	return round2(1.5*float64(f.FanIn) + 0.9*float64(f.InternalImportCount) + 0.3*float64(f.ExportCount))
}

// DebtScore weighs explicit markers above noise, with a small size term.
func DebtScore(f scan.FileInsight) float64 {
	return round2(1.2*float64(f.TodoCount) + 0.5*float64(f.LowSignalCommentLines) + float64(f.LineCount)/400)
}

// CommentScore ranks comment cleanup by volume and density of noise.
func CommentScore(f scan.FileInsight) float64 {
	return round2(float64(f.LowSignalCommentLines) + 10*lowSignalRatio(f))
}

func couplingHotspot(f scan.FileInsight) Hotspot {
	h := Hotspot{FileInsight: f, Score: CouplingScore(f)}
	if f.FanIn >= 2 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("imported by %d files", f.FanIn))
	}
	if f.InternalImportCount >= 9 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d internal imports", f.InternalImportCount))
	}
	if f.ExportCount >= 8 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d exports", f.ExportCount))
	}
	switch {
	case f.InternalImportCount >= 9:
		h.SplitHypothesis = "separate the orchestration from the modules it wires together"
	case f.ExportCount >= 8:
		h.SplitHypothesis = "group related exports into smaller cohesive modules"
	default:
		h.SplitHypothesis = "narrow the surface its dependents rely on"
	}
	return h
}

func debtHotspot(f scan.FileInsight) Hotspot {
	h := Hotspot{FileInsight: f, Score: DebtScore(f)}
	if f.TodoCount > 0 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d TODO/FIXME markers", f.TodoCount))
	}
	if f.LowSignalCommentLines >= 3 {
		h.Reasons = append(h.Reasons, fmt.Sprintf("%d low-signal comment lines", f.LowSignalCommentLines))
	}
	if f.TodoCount > 0 {
		h.SplitHypothesis = "resolve the marked work or drop stale markers"
	} else {
		h.SplitHypothesis = "remove commented-out code and decorative comments"
	}
	return h
}

type scored struct {
	f     scan.FileInsight
	score float64
}

func topFiles(list []scored, limit int) []scan.FileInsight {
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].f.Path < list[j].f.Path
	})
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]scan.FileInsight, len(list))
	for i, s := range list {
		out[i] = s.f
	}
	return out
}

func topHotspots(list []Hotspot, limit int) []Hotspot {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].Path < list[j].Path
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
