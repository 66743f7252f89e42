package scan

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// importRef is one import statement as written in the source.
type importRef struct {
	spec  string
	alias string   // Go import name, when given
	names []string // Python "from x import a, b" names
	local bool     // syntax marks it as project-local (#include "x", require_relative)
}

// parsedFile carries the lexical measurements of one file plus the
// cross-file facts needed to resolve internal imports and fan-in.
type parsedFile struct {
	insight FileInsight
	lang    *language
	imports []importRef

	// Go
	goPackage string
	goExports map[string]bool
	goRefs    map[string]map[string]bool // import name -> referenced exported identifiers

	// Java, Kotlin, C#
	declPackage string
}

var (
	controlStart = regexp.MustCompile(`^\s*(\}\s*)?(if|else|for|foreach|while|switch|catch|return|do|elif|new|throw|case|using|lock|when|until|unless)\b`)

	goPackageRe   = regexp.MustCompile(`^package\s+(\w+)`)
	goImportOne   = regexp.MustCompile(`^import\s+(\w+|\.|_)?\s*"([^"]+)"`)
	goImportEntry = regexp.MustCompile(`^\s*(\w+|\.|_)?\s*"([^"]+)"`)
	goExportDecl  = regexp.MustCompile(`^(func|type|var|const)\s+([A-Z]\w*)`)
	goBlockEntry  = regexp.MustCompile(`^\t([A-Z]\w*)`)
	goSelector    = regexp.MustCompile(`\b([a-z_]\w*)\.([A-Z]\w*)`)

	jsFrom    = regexp.MustCompile(`^\s*(import|export|\})\b.*\bfrom\s+['"]([^'"]+)['"]`)
	jsBare    = regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`)
	jsRequire = regexp.MustCompile(`\b(require|import)\(\s*['"]([^'"]+)['"]\s*\)`)

	pyImport = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFrom   = regexp.MustCompile(`^\s*from\s+(\.*[\w.]*)\s+import\s+(.+)$`)

	rsUse = regexp.MustCompile(`^\s*(pub(\([^)]*\))?\s+)?use\s+([\w:]+)`)
	rsMod = regexp.MustCompile(`^\s*(pub(\([^)]*\))?\s+)?mod\s+(\w+)\s*;`)

	jvmPackage = regexp.MustCompile(`^\s*package\s+([\w.]+)`)
	jvmImport  = regexp.MustCompile(`^\s*import\s+(static\s+)?([\w.]+(\.\*)?)`)

	csNamespace = regexp.MustCompile(`^\s*namespace\s+([\w.]+)`)
	csUsing     = regexp.MustCompile(`^\s*using\s+(static\s+)?([A-Z][\w.]*)\s*;`)

	cInclude = regexp.MustCompile(`^\s*#\s*include\s*([<"])([^>"]+)[>"]`)

	rbRelative = regexp.MustCompile(`^\s*require_relative\s*\(?\s*['"]([^'"]+)['"]`)
	rbRequire  = regexp.MustCompile(`^\s*require\s*\(?\s*['"]([^'"]+)['"]`)

	phpInclude = regexp.MustCompile(`^\s*(require|include)(_once)?\s*\(?\s*(__DIR__\s*\.\s*)?['"]([^'"]+)['"]`)
	phpUse     = regexp.MustCompile(`^\s*use\s+([\w\\]+)`)

	swiftImport = regexp.MustCompile(`^\s*import\s+(\w+)`)
	luaRequire  = regexp.MustCompile(`\brequire\s*\(?\s*['"]([^'"]+)['"]`)
)

// lineState tracks multi-line constructs while walking a file.
type lineState struct {
	blockEnd    string // closing delimiter of an open block comment
	docEnd      string // closing delimiter of an open Python docstring
	goImports   bool
	goDeclBlock bool
	prevComment bool
}

// measure computes lexical metrics for one file.
func measure(path string, data []byte, lang *language) *parsedFile {
	pf := &parsedFile{
		insight: FileInsight{Path: path},
		lang:    lang,
	}
	if lang.name == "go" {
		pf.goExports = map[string]bool{}
		pf.goRefs = map[string]map[string]bool{}
	}

	var st lineState
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		pf.insight.LineCount++
		pf.line(line, &st)
	}
	return pf
}

func (pf *parsedFile) line(line string, st *lineState) {
	trimmed := strings.TrimSpace(line)

	if st.blockEnd != "" {
		text := trimmed
		if i := strings.Index(text, st.blockEnd); i >= 0 {
			text = text[:i]
			st.blockEnd = ""
		}
		text = strings.TrimLeft(text, "*")
		pf.comment(text, true, st)
		return
	}
	if st.docEnd != "" {
		if strings.Contains(trimmed, st.docEnd) {
			st.docEnd = ""
		}
		st.prevComment = false
		return
	}
	if trimmed == "" {
		st.prevComment = false
		return
	}

	if text, ok := pf.openComment(trimmed, st); ok {
		pf.comment(text, st.blockEnd != "" || strings.HasPrefix(trimmed, "/*"), st)
		return
	}
	st.prevComment = false

	if pf.lang.comments == hashComments && pf.lang.name == "python" {
		for _, q := range []string{`"""`, `'''`} {
			body := strings.TrimLeft(trimmed, "rRbBuUfF")
			if strings.HasPrefix(body, q) {
				if strings.Count(body, q) < 2 {
					st.docEnd = q
				}
				return
			}
		}
	}

	pf.code(line, trimmed, st)
}

// openComment recognises a line that starts a comment and returns its body.
func (pf *parsedFile) openComment(trimmed string, st *lineState) (string, bool) {
	switch pf.lang.comments {
	case slashComments:
		if strings.HasPrefix(trimmed, "//") {
			return strings.TrimLeft(trimmed[2:], "/!"), true
		}
		if strings.HasPrefix(trimmed, "/*") {
			body := strings.TrimLeft(trimmed[2:], "*!")
			if i := strings.Index(body, "*/"); i >= 0 {
				return body[:i], true
			}
			st.blockEnd = "*/"
			return body, true
		}
		if pf.lang.alsoHash && strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "#[") {
			return trimmed[1:], true
		}
	case hashComments:
		if strings.HasPrefix(trimmed, "#") {
			return trimmed[1:], true
		}
		if pf.lang.name == "ruby" && strings.HasPrefix(trimmed, "=begin") {
			st.blockEnd = "=end"
			return strings.TrimPrefix(trimmed, "=begin"), true
		}
	case luaComments:
		if strings.HasPrefix(trimmed, "--[[") {
			body := trimmed[4:]
			if i := strings.Index(body, "]]"); i >= 0 {
				return body[:i], true
			}
			st.blockEnd = "]]"
			return body, true
		}
		if strings.HasPrefix(trimmed, "--") {
			return trimmed[2:], true
		}
	}
	return "", false
}

// comment records one comment line. Blank lines inside a block comment or
// a multi-line comment run separate paragraphs and are not low-signal.
func (pf *parsedFile) comment(text string, inBlock bool, st *lineState) {
	t := strings.TrimSpace(text)
	if pragma(t) {
		return
	}
	pf.insight.CommentLines++
	switch {
	case hasTodo(t):
		pf.insight.TodoCount++
	case t == "" && (inBlock || st.prevComment):
	case lowSignal(t):
		pf.insight.LowSignalCommentLines++
	}
	st.prevComment = true
}

func (pf *parsedFile) code(line, trimmed string, st *lineState) {
	if tail, ok := pf.trailingComment(trimmed); ok && hasTodo(tail) {
		pf.insight.TodoCount++
	}

	pf.collectImports(line, trimmed, st)

	if st.goImports {
		return
	}

	control := controlStart.MatchString(trimmed)
	if !control && matchesAny(pf.lang.function, line) {
		pf.insight.FunctionCount++
	}
	if matchesAny(pf.lang.class, line) {
		pf.insight.ClassCount++
	}

	if pf.lang.name == "go" {
		pf.goDecls(line, trimmed, st)
		return
	}
	if matchesAny(pf.lang.export, line) {
		pf.insight.ExportCount++
	}
}

// trailingComment returns the comment text following code on the same line.
func (pf *parsedFile) trailingComment(trimmed string) (string, bool) {
	marker := "//"
	if pf.lang.comments == hashComments {
		marker = " #"
	} else if pf.lang.comments == luaComments {
		marker = " --"
	}
	i := strings.Index(trimmed, marker)
	if i < 0 {
		return "", false
	}
	if marker == "//" && i > 0 && trimmed[i-1] == ':' {
		return "", false
	}
	return trimmed[i+len(marker):], true
}

func (pf *parsedFile) goDecls(line, trimmed string, st *lineState) {
	if m := goPackageRe.FindStringSubmatch(line); m != nil {
		pf.goPackage = m[1]
		return
	}
	if st.goDeclBlock {
		if strings.HasPrefix(line, ")") {
			st.goDeclBlock = false
			return
		}
		if m := goBlockEntry.FindStringSubmatch(line); m != nil {
			pf.export(m[1])
		}
	} else {
		switch trimmed {
		case "var (", "const (", "type (":
			if !strings.HasPrefix(line, "\t") {
				st.goDeclBlock = true
				return
			}
		}
		if m := goExportDecl.FindStringSubmatch(line); m != nil {
			pf.export(m[2])
		}
	}
	for _, m := range goSelector.FindAllStringSubmatch(line, -1) {
		refs := pf.goRefs[m[1]]
		if refs == nil {
			refs = map[string]bool{}
			pf.goRefs[m[1]] = refs
		}
		refs[m[2]] = true
	}
}

func (pf *parsedFile) export(name string) {
	if !pf.goExports[name] {
		pf.goExports[name] = true
		pf.insight.ExportCount++
	}
}

func (pf *parsedFile) addImport(ref importRef) {
	if ref.spec == "" {
		return
	}
	pf.imports = append(pf.imports, ref)
	pf.insight.ImportCount++
}

func (pf *parsedFile) collectImports(line, trimmed string, st *lineState) {
	switch pf.lang.name {
	case "go":
		if st.goImports {
			if strings.HasPrefix(trimmed, ")") {
				st.goImports = false
				return
			}
			if m := goImportEntry.FindStringSubmatch(trimmed); m != nil {
				pf.addImport(importRef{spec: m[2], alias: m[1]})
			}
			return
		}
		if trimmed == "import (" {
			st.goImports = true
			return
		}
		if m := goImportOne.FindStringSubmatch(trimmed); m != nil {
			pf.addImport(importRef{spec: m[2], alias: m[1]})
		}
	case "typescript", "javascript":
		switch {
		case jsFrom.MatchString(line):
			pf.addImport(importRef{spec: jsFrom.FindStringSubmatch(line)[2]})
		case jsBare.MatchString(line):
			pf.addImport(importRef{spec: jsBare.FindStringSubmatch(line)[1]})
		default:
			for _, m := range jsRequire.FindAllStringSubmatch(line, -1) {
				pf.addImport(importRef{spec: m[2]})
			}
		}
	case "python":
		if m := pyFrom.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[1], names: splitNames(m[2])})
			return
		}
		if m := pyImport.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				fields := strings.Fields(part)
				if len(fields) > 0 {
					pf.addImport(importRef{spec: fields[0]})
				}
			}
		}
	case "rust":
		if m := rsUse.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: strings.TrimSuffix(m[3], "::")})
		} else if m := rsMod.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: "mod::" + m[3], local: true})
		}
	case "java", "kotlin":
		if m := jvmPackage.FindStringSubmatch(line); m != nil && pf.declPackage == "" {
			pf.declPackage = m[1]
		} else if m := jvmImport.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[2]})
		}
	case "csharp":
		if m := csNamespace.FindStringSubmatch(line); m != nil && pf.declPackage == "" {
			pf.declPackage = m[1]
		} else if m := csUsing.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[2]})
		}
	case "c", "cpp":
		if m := cInclude.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[2], local: m[1] == `"`})
		}
	case "ruby":
		if m := rbRelative.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[1], local: true})
		} else if m := rbRequire.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[1]})
		}
	case "php":
		if m := phpInclude.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[4], local: true})
		} else if m := phpUse.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[1]})
		}
	case "swift":
		if m := swiftImport.FindStringSubmatch(line); m != nil {
			pf.addImport(importRef{spec: m[1]})
		}
	case "lua":
		for _, m := range luaRequire.FindAllStringSubmatch(line, -1) {
			pf.addImport(importRef{spec: m[1]})
		}
	}
}

// splitNames parses the name list of a Python from-import.
func splitNames(list string) []string {
	list = strings.Trim(strings.TrimSpace(list), "()\\")
	var names []string
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 && fields[0] != "*" {
			names = append(names, fields[0])
		}
	}
	return names
}
