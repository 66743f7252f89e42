package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"refloop/pkg/scan"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func scanDir(t *testing.T, root string, maxFiles int) *scan.Result {
	t.Helper()
	res, err := scan.New(nil).Scan(context.Background(), root, maxFiles)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return res
}

func byPath(res *scan.Result) map[string]scan.FileInsight {
	m := make(map[string]scan.FileInsight, len(res.Files))
	for _, f := range res.Files {
		m[f.Path] = f
	}
	return m
}

func TestScan_SkipsVendorAndVCSDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/hooks/pre-commit.py", "print('x')\n")
	writeFile(t, root, "dist/bundle.js", "var a = 1\n")
	writeFile(t, root, "README.md", "# readme\n")

	res := scanDir(t, root, 0)

	if len(res.Files) != 1 {
		t.Fatalf("scanned %d files, want 1: %+v", len(res.Files), res.Files)
	}
	if res.Files[0].Path != "main.go" {
		t.Errorf("path = %q, want main.go", res.Files[0].Path)
	}
	if res.TotalLines != 3 {
		t.Errorf("TotalLines = %d, want 3", res.TotalLines)
	}
	if res.ReachedFileCap {
		t.Error("ReachedFileCap should be false")
	}
}

func TestScan_ReportsFileCap(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		writeFile(t, root, name, "package x\n")
	}

	capped := scanDir(t, root, 2)
	if len(capped.Files) != 2 {
		t.Fatalf("scanned %d files, want 2", len(capped.Files))
	}
	if !capped.ReachedFileCap {
		t.Error("expected ReachedFileCap with cap 2 and 3 files")
	}

	full := scanDir(t, root, 3)
	if full.ReachedFileCap {
		t.Error("cap equal to file count must not report ReachedFileCap")
	}
}

func TestScan_CommentMetrics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "calc.go", `package calc

// Compute adds numbers.
// TODO: handle overflow
//
// ----------
// x := 1
func Compute() int { return 1 }
`)

	f := byPath(scanDir(t, root, 0))["calc.go"]

	if f.LineCount != 8 {
		t.Errorf("LineCount = %d, want 8", f.LineCount)
	}
	if f.CommentLines != 5 {
		t.Errorf("CommentLines = %d, want 5", f.CommentLines)
	}
	if f.LowSignalCommentLines != 2 {
		t.Errorf("LowSignalCommentLines = %d, want 2", f.LowSignalCommentLines)
	}
	if f.TodoCount != 1 {
		t.Errorf("TodoCount = %d, want 1", f.TodoCount)
	}
	if f.FunctionCount != 1 {
		t.Errorf("FunctionCount = %d, want 1", f.FunctionCount)
	}
	if f.ExportCount != 1 {
		t.Errorf("ExportCount = %d, want 1", f.ExportCount)
	}
}

func TestScan_PythonDocstringsAreNotComments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.py", `"""Module docstring.

Spans lines.
"""

# explain the retry policy here
def run():
    pass
`)

	f := byPath(scanDir(t, root, 0))["mod.py"]
	if f.CommentLines != 1 {
		t.Errorf("CommentLines = %d, want 1", f.CommentLines)
	}
	if f.FunctionCount != 1 || f.ExportCount != 1 {
		t.Errorf("functions=%d exports=%d, want 1/1", f.FunctionCount, f.ExportCount)
	}
}

func TestScan_TypeScriptFanIn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/util.ts", "export function helper() {}\nexport const x = 1\n")
	writeFile(t, root, "src/a.ts", "import React from 'react'\nimport { helper } from './util'\n")
	writeFile(t, root, "src/b.ts", "import { x } from \"./util.js\"\n")

	files := byPath(scanDir(t, root, 0))

	if got := files["src/util.ts"].FanIn; got != 2 {
		t.Errorf("util.ts FanIn = %d, want 2", got)
	}
	if got := files["src/util.ts"].ExportCount; got != 2 {
		t.Errorf("util.ts ExportCount = %d, want 2", got)
	}
	a := files["src/a.ts"]
	if a.ImportCount != 2 || a.InternalImportCount != 1 {
		t.Errorf("a.ts imports=%d internal=%d, want 2/1", a.ImportCount, a.InternalImportCount)
	}
}

func TestScan_GoFanInFollowsReferencedIdentifiers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/m\n\ngo 1.22\n")
	writeFile(t, root, "pkg/store/store.go", "package store\n\nfunc Open() int { return 0 }\n")
	writeFile(t, root, "pkg/store/other.go", "package store\n\ntype Other struct{}\n")
	writeFile(t, root, "cmd/main.go", `package main

import (
	"fmt"

	"example.com/m/pkg/store"
)

func main() {
	fmt.Println(store.Open())
}
`)

	files := byPath(scanDir(t, root, 0))

	if got := files["pkg/store/store.go"].FanIn; got != 1 {
		t.Errorf("store.go FanIn = %d, want 1", got)
	}
	if got := files["pkg/store/other.go"].FanIn; got != 0 {
		t.Errorf("other.go FanIn = %d, want 0", got)
	}
	m := files["cmd/main.go"]
	if m.ImportCount != 2 || m.InternalImportCount != 1 {
		t.Errorf("main.go imports=%d internal=%d, want 2/1", m.ImportCount, m.InternalImportCount)
	}
	if got := files["pkg/store/other.go"].ClassCount; got != 1 {
		t.Errorf("other.go ClassCount = %d, want 1", got)
	}
}

func TestScan_PythonRelativeImports(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app/__init__.py", "")
	writeFile(t, root, "app/models.py", "class User:\n    pass\n")
	writeFile(t, root, "app/views.py", "import os\nfrom .models import User\n")
	writeFile(t, root, "app/admin.py", "from app.models import User\n")

	files := byPath(scanDir(t, root, 0))

	if got := files["app/models.py"].FanIn; got != 2 {
		t.Errorf("models.py FanIn = %d, want 2", got)
	}
	v := files["app/views.py"]
	if v.ImportCount != 2 || v.InternalImportCount != 1 {
		t.Errorf("views.py imports=%d internal=%d, want 2/1", v.ImportCount, v.InternalImportCount)
	}
}

func TestResult_Largest(t *testing.T) {
	res := &scan.Result{Files: []scan.FileInsight{
		{Path: "b.go", LineCount: 10},
		{Path: "a.go", LineCount: 10},
		{Path: "c.go", LineCount: 50},
	}}

	got := res.Largest(2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Path != "c.go" || got[1].Path != "a.go" {
		t.Errorf("order = %s,%s, want c.go,a.go", got[0].Path, got[1].Path)
	}
}
