package scan

import (
	"path"
	"strings"
)

var jsProbeExts = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts", ".vue", ".svelte"}

// index holds the cross-file lookups needed to resolve imports to files.
type index struct {
	files      map[string]*parsedFile
	goModule   string
	goDirs     map[string][]*parsedFile
	pyModules  map[string]string
	pyTop      map[string]bool
	jvmClasses map[string]string
	jvmPkgs    map[string][]string
	csSpaces   map[string]bool
}

func newIndex(files []*parsedFile, goModule string) *index {
	idx := &index{
		files:      make(map[string]*parsedFile, len(files)),
		goModule:   goModule,
		goDirs:     map[string][]*parsedFile{},
		pyModules:  map[string]string{},
		pyTop:      map[string]bool{},
		jvmClasses: map[string]string{},
		jvmPkgs:    map[string][]string{},
		csSpaces:   map[string]bool{},
	}
	for _, pf := range files {
		p := pf.insight.Path
		idx.files[p] = pf
		switch pf.lang.name {
		case "go":
			if !strings.HasSuffix(p, "_test.go") {
				dir := path.Dir(p)
				idx.goDirs[dir] = append(idx.goDirs[dir], pf)
			}
		case "python":
			for _, mod := range pythonModuleNames(p) {
				if _, ok := idx.pyModules[mod]; !ok {
					idx.pyModules[mod] = p
				}
				idx.pyTop[strings.SplitN(mod, ".", 2)[0]] = true
			}
		case "java", "kotlin":
			if pf.declPackage != "" {
				stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
				idx.jvmClasses[pf.declPackage+"."+stem] = p
				idx.jvmPkgs[pf.declPackage] = append(idx.jvmPkgs[pf.declPackage], p)
			}
		case "csharp":
			if pf.declPackage != "" {
				idx.csSpaces[pf.declPackage] = true
			}
		}
	}
	return idx
}

// pythonModuleNames returns the dotted names a Python file can be imported by,
// with and without a leading src/ layout directory.
func pythonModuleNames(p string) []string {
	mod := strings.TrimSuffix(p, ".py")
	mod = strings.TrimSuffix(mod, "/__init__")
	if mod == "__init__" {
		return nil
	}
	names := []string{strings.ReplaceAll(mod, "/", ".")}
	for _, root := range []string{"src/", "lib/", "python/"} {
		if rest, ok := strings.CutPrefix(mod, root); ok {
			names = append(names, strings.ReplaceAll(rest, "/", "."))
		}
	}
	return names
}

func (idx *index) exists(p string) bool {
	_, ok := idx.files[p]
	return ok
}

// probe returns the first candidate path that is a scanned file.
func (idx *index) probe(candidates ...string) string {
	for _, c := range candidates {
		c = path.Clean(c)
		if idx.exists(c) {
			return c
		}
	}
	return ""
}

// resolve classifies ref as internal or external and returns the scanned
// files it points at.
func (idx *index) resolve(pf *parsedFile, ref importRef) (bool, []string) {
	dir := path.Dir(pf.insight.Path)
	switch pf.lang.name {
	case "go":
		return idx.resolveGo(pf, ref)
	case "typescript", "javascript":
		return idx.resolveJS(dir, ref.spec)
	case "python":
		return idx.resolvePython(dir, ref)
	case "rust":
		return idx.resolveRust(pf.insight.Path, ref.spec)
	case "java", "kotlin":
		return idx.resolveJVM(ref.spec)
	case "csharp":
		return idx.csSpaces[ref.spec], nil
	case "c", "cpp":
		if !ref.local {
			return false, nil
		}
		return true, one(idx.probe(path.Join(dir, ref.spec), ref.spec, path.Join("include", ref.spec), path.Join("src", ref.spec)))
	case "ruby":
		spec := ref.spec
		if path.Ext(spec) == "" {
			spec += ".rb"
		}
		if ref.local {
			return true, one(idx.probe(path.Join(dir, spec)))
		}
		if t := idx.probe(path.Join("lib", spec)); t != "" {
			return true, []string{t}
		}
		return false, nil
	case "php":
		if ref.local {
			return true, one(idx.probe(path.Join(dir, ref.spec), ref.spec))
		}
		parts := strings.Split(ref.spec, `\`)
		if len(parts) < 2 {
			return false, nil
		}
		rest := strings.Join(parts[1:], "/") + ".php"
		if t := idx.probe(path.Join("src", rest), path.Join("app", rest), rest); t != "" {
			return true, []string{t}
		}
		return false, nil
	case "lua":
		rel := strings.ReplaceAll(ref.spec, ".", "/")
		if t := idx.probe(rel+".lua", path.Join(rel, "init.lua")); t != "" {
			return true, []string{t}
		}
		return false, nil
	}
	return false, nil
}

func one(p string) []string {
	if p == "" {
		return nil
	}
	return []string{p}
}

func (idx *index) resolveGo(pf *parsedFile, ref importRef) (bool, []string) {
	if idx.goModule == "" {
		return false, nil
	}
	var rel string
	switch {
	case ref.spec == idx.goModule:
		rel = "."
	case strings.HasPrefix(ref.spec, idx.goModule+"/"):
		rel = strings.TrimPrefix(ref.spec, idx.goModule+"/")
	default:
		return false, nil
	}
	pkgFiles := idx.goDirs[rel]
	if len(pkgFiles) == 0 {
		return true, nil
	}

	var targets []string
	switch ref.alias {
	case "_":
		return true, nil
	case ".":
		for _, f := range pkgFiles {
			targets = append(targets, f.insight.Path)
		}
		return true, targets
	}

	name := ref.alias
	if name == "" {
		name = pkgFiles[0].goPackage
		if name == "" {
			name = path.Base(ref.spec)
		}
	}
	used := pf.goRefs[name]
	for _, f := range pkgFiles {
		for ident := range used {
			if f.goExports[ident] {
				targets = append(targets, f.insight.Path)
				break
			}
		}
	}
	return true, targets
}

func (idx *index) resolveJS(dir, spec string) (bool, []string) {
	var bases []string
	switch {
	case strings.HasPrefix(spec, "."):
		bases = []string{path.Join(dir, spec)}
	case strings.HasPrefix(spec, "@/"), strings.HasPrefix(spec, "~/"):
		rest := spec[2:]
		bases = []string{path.Join("src", rest), rest}
	case strings.HasPrefix(spec, "#"), strings.HasPrefix(spec, "/"):
		bases = []string{strings.TrimLeft(spec, "#/")}
	default:
		return false, nil
	}

	var candidates []string
	for _, b := range bases {
		candidates = append(candidates, b)
		if ext := path.Ext(b); ext == ".js" || ext == ".jsx" || ext == ".mjs" {
			stem := strings.TrimSuffix(b, ext)
			candidates = append(candidates, stem+".ts", stem+".tsx", stem+".mts")
		}
		for _, ext := range jsProbeExts {
			candidates = append(candidates, b+ext)
		}
		for _, ext := range jsProbeExts {
			candidates = append(candidates, path.Join(b, "index"+ext))
		}
	}
	return true, one(idx.probe(candidates...))
}

func (idx *index) resolvePython(dir string, ref importRef) (bool, []string) {
	spec := ref.spec
	if strings.HasPrefix(spec, ".") {
		dots := len(spec) - len(strings.TrimLeft(spec, "."))
		base := dir
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		rest := strings.ReplaceAll(spec[dots:], ".", "/")
		return true, idx.pythonTargets(path.Join(base, rest), ref.names)
	}

	top := strings.SplitN(spec, ".", 2)[0]
	if !idx.pyTop[top] {
		return false, nil
	}
	for _, name := range ref.names {
		if t, ok := idx.pyModules[spec+"."+name]; ok {
			return true, []string{t}
		}
	}
	if t, ok := idx.pyModules[spec]; ok {
		return true, []string{t}
	}
	return true, nil
}

func (idx *index) pythonTargets(base string, names []string) []string {
	var targets []string
	for _, name := range names {
		if t := idx.probe(path.Join(base, name)+".py", path.Join(base, name, "__init__.py")); t != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) > 0 {
		return targets
	}
	return one(idx.probe(base+".py", path.Join(base, "__init__.py")))
}

// rustModuleDir returns the directory holding the child modules of file.
func rustModuleDir(file string) string {
	dir := path.Dir(file)
	switch path.Base(file) {
	case "mod.rs", "lib.rs", "main.rs":
		return dir
	}
	return path.Join(dir, strings.TrimSuffix(path.Base(file), ".rs"))
}

// rustCrateRoot returns the nearest enclosing src directory of file.
func rustCrateRoot(file string) string {
	dir := path.Dir(file)
	for {
		if path.Base(dir) == "src" {
			return dir
		}
		parent := path.Dir(dir)
		if parent == dir || dir == "." {
			return "src"
		}
		dir = parent
	}
}

func (idx *index) resolveRust(file, spec string) (bool, []string) {
	segs := strings.Split(spec, "::")
	var base string
	switch segs[0] {
	case "mod":
		md := rustModuleDir(file)
		return true, one(idx.probe(path.Join(md, segs[1])+".rs", path.Join(md, segs[1], "mod.rs")))
	case "crate":
		base = rustCrateRoot(file)
	case "self":
		base = rustModuleDir(file)
	case "super":
		base = path.Dir(rustModuleDir(file))
		for len(segs) > 1 && segs[1] == "super" {
			base = path.Dir(base)
			segs = segs[1:]
		}
	default:
		return false, nil
	}
	rest := segs[1:]
	for k := len(rest); k > 0; k-- {
		p := path.Join(append([]string{base}, rest[:k]...)...)
		if t := idx.probe(p+".rs", path.Join(p, "mod.rs")); t != "" {
			return true, []string{t}
		}
	}
	return true, nil
}

func (idx *index) resolveJVM(spec string) (bool, []string) {
	if pkg, ok := strings.CutSuffix(spec, ".*"); ok {
		files := idx.jvmPkgs[pkg]
		return len(files) > 0, files
	}
	for s := spec; strings.Contains(s, "."); s = s[:strings.LastIndex(s, ".")] {
		if t, ok := idx.jvmClasses[s]; ok {
			return true, []string{t}
		}
		if _, ok := idx.jvmPkgs[s]; ok {
			return true, nil
		}
	}
	return false, nil
}

// link resolves every import, fills InternalImportCount and FanIn, and
// returns the finished insights in input order.
func link(files []*parsedFile, goModule string) []FileInsight {
	idx := newIndex(files, goModule)
	importers := map[string]map[string]bool{}

	for _, pf := range files {
		for _, ref := range pf.imports {
			internal, targets := idx.resolve(pf, ref)
			if !internal {
				continue
			}
			pf.insight.InternalImportCount++
			for _, t := range targets {
				if t == pf.insight.Path {
					continue
				}
				set := importers[t]
				if set == nil {
					set = map[string]bool{}
					importers[t] = set
				}
				set[pf.insight.Path] = true
			}
		}
	}

	out := make([]FileInsight, len(files))
	for i, pf := range files {
		pf.insight.FanIn = len(importers[pf.insight.Path])
		out[i] = pf.insight
	}
	return out
}
