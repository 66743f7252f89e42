// Package calibrate asks a read-only AI reviewer to drop false positives from
// the heuristic candidate lists. The reviewer can only narrow the lists:
// paths it was not shown, or that the heuristic never proposed, are ignored.
// Any failure leaves the scan unfiltered.
package calibrate

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"refloop/pkg/aiexec"
	"refloop/pkg/backlog"
	"refloop/pkg/payload"
	"refloop/pkg/prompt"
	"refloop/pkg/scan"
)

// Review limits.
const (
	MaxReviewed  = 32
	snippetLines = 40
	snippetBytes = 2048
)

// Options select the provider used for calibration calls.
type Options struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

// Outcome is the result of one calibration.
type Outcome struct {
	Scan     backlog.RepoScan
	Reviewed int
	Dropped  int
	Warning  string // set when the scan was returned unfiltered because of a failure
}

// Filter runs calibration calls.
type Filter struct {
	exec   aiexec.Executor
	opts   Options
	logger *slog.Logger
}

// New returns a Filter that calls exec.
func New(exec aiexec.Executor, opts Options, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Filter{exec: exec, opts: opts, logger: logger}
}

type key struct {
	category string
	path     string
}

// Calibrate reviews up to MaxReviewed candidates of rs and returns a new scan
// without the rejected ones. rs itself is never modified.
func (f *Filter) Calibrate(ctx context.Context, rs backlog.RepoScan) Outcome {
	items := Select(rs, MaxReviewed)
	if len(items) == 0 {
		return Outcome{Scan: rs}
	}

	review := make([]prompt.ReviewItem, 0, len(items))
	reviewed := make(map[key]bool, len(items))
	for _, it := range items {
		reviewed[key{it.Category, it.Path}] = true
		review = append(review, prompt.ReviewItem{
			Category: it.Category,
			Path:     it.Path,
			Metrics:  metrics(it.Category, it.Insight),
			Snippet:  Snippet(filepath.Join(rs.TargetDir, it.Path)),
		})
	}

	res := f.exec.Execute(ctx, aiexec.Request{
		Prompt:   prompt.Calibration(review),
		Provider: f.opts.Provider,
		Model:    f.opts.Model,
		Dir:      rs.TargetDir,
		Timeout:  f.opts.Timeout,
		Sandbox:  aiexec.ReadOnly,
	})
	if !res.OK {
		return f.unfiltered(rs, len(items), fmt.Sprintf("calibration call failed: %v", res.Err))
	}

	var verdict map[string][]string
	if err := payload.Decode(res.Output, payload.Calibration, &verdict); err != nil {
		return f.unfiltered(rs, len(items), fmt.Sprintf("calibration output unusable: %v", err))
	}

	approved := make(map[key]bool)
	for category, paths := range verdict {
		for _, p := range paths {
			approved[key{category, filepath.ToSlash(filepath.Clean(p))}] = true
		}
	}

	out := rs.Filter(func(category, path string) bool {
		if !reviewed[key{category, path}] {
			return true
		}
		if _, judged := verdict[category]; !judged {
			return true
		}
		return approved[key{category, path}]
	})

	dropped := backlog.Summarize(rs).Total() - backlog.Summarize(out).Total()
	f.logger.Info("calibration applied", "reviewed", len(items), "dropped", dropped, "provider", res.ProviderUsed)
	return Outcome{Scan: out, Reviewed: len(items), Dropped: dropped}
}

func (f *Filter) unfiltered(rs backlog.RepoScan, reviewed int, warning string) Outcome {
	f.logger.Warn("calibration skipped; using heuristic scan", "reason", warning)
	return Outcome{Scan: rs, Reviewed: reviewed, Warning: warning}
}

// Item is one candidate selected for review.
type Item struct {
	Category string
	Path     string
	Insight  scan.FileInsight
}

// Select picks up to limit candidates, round-robin across categories by rank
// so every category is represented.
func Select(rs backlog.RepoScan, limit int) []Item {
	paths := make(map[string][]string, len(backlog.Categories))
	for _, c := range backlog.Categories {
		paths[c] = rs.Paths(c)
	}

	var out []Item
	for rank := 0; len(out) < limit; rank++ {
		added := false
		for _, c := range backlog.Categories {
			if rank >= len(paths[c]) || len(out) >= limit {
				continue
			}
			out = append(out, Item{Category: c, Path: paths[c][rank], Insight: rs.Insight(c, rank)})
			added = true
		}
		if !added {
			break
		}
	}
	return out
}

// Snippet returns the first lines of the file at path, bounded in size. An
// unreadable file yields an empty snippet.
func Snippet(path string) string {
	fh, err := os.Open(path) //nolint:gosec // path comes from our own scan
	if err != nil {
		return ""
	}
	defer fh.Close()

	var b strings.Builder
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 0; n < snippetLines && sc.Scan(); n++ {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
		if b.Len() >= snippetBytes {
			break
		}
	}
	s := b.String()
	if len(s) > snippetBytes {
		s = trimPartialRune(s[:snippetBytes])
	}
	return strings.TrimRight(s, "\n")
}

// trimPartialRune drops a multi-byte rune cut off at the end of s. Invalid
// bytes elsewhere are left alone.
func trimPartialRune(s string) string {
	for i := len(s) - 1; i >= 0 && i > len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				return s[:i]
			}
			break
		}
	}
	return s
}

func metrics(category string, f scan.FileInsight) string {
	switch category {
	case backlog.Monolith:
		return fmt.Sprintf("%d lines, %d functions, %d classes, %d exports, %d internal imports, fan-in %d, %d TODOs",
			f.LineCount, f.FunctionCount, f.ClassCount, f.ExportCount, f.InternalImportCount, f.FanIn, f.TodoCount)
	case backlog.Coupling:
		return fmt.Sprintf("fan-in %d, %d internal imports, %d exports, %d lines",
			f.FanIn, f.InternalImportCount, f.ExportCount, f.LineCount)
	case backlog.Debt:
		return fmt.Sprintf("%d TODO/FIXME markers, %d low-signal comment lines, %d lines",
			f.TodoCount, f.LowSignalCommentLines, f.LineCount)
	default:
		return fmt.Sprintf("%d comment lines, %d low-signal, %d lines",
			f.CommentLines, f.LowSignalCommentLines, f.LineCount)
	}
}
