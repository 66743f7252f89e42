// Package scan walks a source tree and measures per-file structural metrics
// with lightweight lexical heuristics. It never decides what to do with the
// numbers; callers classify them.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxFiles is the file cap used when the caller passes zero.
const DefaultMaxFiles = 20000

// maxFileBytes skips generated bundles and data blobs that happen to carry
// a source extension.
const maxFileBytes = 1 << 20

// FileInsight is the immutable metric snapshot of one source file.
type FileInsight struct {
	Path                  string `json:"path"`
	LineCount             int    `json:"lineCount"`
	CommentLines          int    `json:"commentLines"`
	LowSignalCommentLines int    `json:"lowSignalCommentLines"`
	TodoCount             int    `json:"todoCount"`
	ImportCount           int    `json:"importCount"`
	InternalImportCount   int    `json:"internalImportCount"`
	FanIn                 int    `json:"fanIn"`
	ExportCount           int    `json:"exportCount"`
	FunctionCount         int    `json:"functionCount"`
	ClassCount            int    `json:"classCount"`
}

// Result is the output of one scan.
type Result struct {
	Root           string
	Files          []FileInsight
	TotalLines     int
	ReachedFileCap bool
	// Languages counts scanned files per language name.
	Languages map[string]int
}

// Largest returns up to n files ordered by line count desc, path asc.
func (r *Result) Largest(n int) []FileInsight {
	sorted := make([]FileInsight, len(r.Files))
	copy(sorted, r.Files)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LineCount != sorted[j].LineCount {
			return sorted[i].LineCount > sorted[j].LineCount
		}
		return sorted[i].Path < sorted[j].Path
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":             true,
	".hg":              true,
	".svn":             true,
	".refloop":         true,
	".worktrees":       true,
	".idea":            true,
	".vscode":          true,
	".next":            true,
	".nuxt":            true,
	".turbo":           true,
	".cache":           true,
	".venv":            true,
	".tox":             true,
	".mypy_cache":      true,
	".pytest_cache":    true,
	"__pycache__":      true,
	"node_modules":     true,
	"bower_components": true,
	"vendor":           true,
	"venv":             true,
	"env":              true,
	"dist":             true,
	"build":            true,
	"out":              true,
	"target":           true,
	"bin":              true,
	"obj":              true,
	"coverage":         true,
	"Pods":             true,
	"DerivedData":      true,
}

// SkipDir reports whether a directory name is excluded from scans.
func SkipDir(name string) bool {
	return skipDirs[name]
}

// Scanner measures source trees.
type Scanner struct {
	logger  *slog.Logger
	workers int
}

// New returns a Scanner. A nil logger discards output.
func New(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{logger: logger, workers: runtime.NumCPU()}
}

// Scan walks root and measures up to maxFiles source files (DefaultMaxFiles
// when maxFiles <= 0). Hitting the cap sets ReachedFileCap.
func (s *Scanner) Scan(ctx context.Context, root string, maxFiles int) (*Result, error) {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", absRoot)
	}

	paths, capped, err := s.walk(ctx, absRoot, maxFiles)
	if err != nil {
		return nil, err
	}

	parsed := make([]*parsedFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			//nolint:gosec // path comes from walking absRoot
			data, err := os.ReadFile(filepath.Join(absRoot, filepath.FromSlash(rel)))
			if err != nil {
				s.logger.Debug("skip unreadable file", "path", rel, "err", err)
				return nil
			}
			parsed[i] = measure(rel, data, languageFor(rel))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("measure files: %w", err)
	}

	kept := parsed[:0]
	for _, pf := range parsed {
		if pf != nil {
			kept = append(kept, pf)
		}
	}

	res := &Result{
		Root:           absRoot,
		Files:          link(kept, goModulePath(absRoot)),
		ReachedFileCap: capped,
		Languages:      map[string]int{},
	}
	for _, pf := range kept {
		res.TotalLines += pf.insight.LineCount
		res.Languages[pf.lang.name]++
	}

	s.logger.Debug("scan complete",
		"root", absRoot,
		"files", len(res.Files),
		"lines", res.TotalLines,
		"capped", capped,
	)
	return res, nil
}

// walk returns slash-separated relative paths of source files in lexical
// order, stopping once maxFiles have been collected.
func (s *Scanner) walk(ctx context.Context, root string, maxFiles int) ([]string, bool, error) {
	var paths []string
	capped := false

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == root {
				return walkErr
			}
			s.logger.Debug("skip unreadable entry", "path", p, "err", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsSource(p) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileBytes {
			return nil
		}
		if len(paths) >= maxFiles {
			capped = true
			return filepath.SkipAll
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil //nolint:nilerr // unreachable for paths under root
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !errors.Is(err, filepath.SkipAll) {
		return nil, false, fmt.Errorf("walk %s: %w", root, err)
	}
	return paths, capped, nil
}

// goModulePath reads the module path from root/go.mod, or "" when absent.
func goModulePath(root string) string {
	f, err := os.Open(filepath.Join(root, "go.mod")) //nolint:gosec // fixed name under root
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, "module "); ok {
			return strings.Trim(strings.TrimSpace(rest), `"`)
		}
	}
	return ""
}
