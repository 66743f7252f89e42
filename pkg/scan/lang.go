package scan

import (
	"path/filepath"
	"regexp"
	"strings"
)

// commentStyle selects the comment grammar of a language family.
type commentStyle int

const (
	slashComments commentStyle = iota // // and /* */
	hashComments                      // #
	luaComments                       // -- and --[[ ]]
)

// language holds the lexical patterns used to measure one source language.
type language struct {
	name     string
	comments commentStyle
	// alsoHash marks C-family languages that also accept # line comments (PHP).
	alsoHash bool
	function []*regexp.Regexp
	class    []*regexp.Regexp
	export   []*regexp.Regexp
}

var (
	jsFunction = []*regexp.Regexp{
		regexp.MustCompile(`\bfunction\b\s*\*?\s*\w*\s*\(`),
		regexp.MustCompile(`=\s*(async\s+)?(\([^)]*\)|\w+)\s*(:\s*[^=]+)?=>`),
		regexp.MustCompile(`^\s+(public\s+|private\s+|protected\s+|static\s+|async\s+|get\s+|set\s+)*[A-Za-z_$][\w$]*\s*\([^)]*\)\s*(:\s*[^{]+)?\{\s*$`),
	}
	jsClass  = []*regexp.Regexp{regexp.MustCompile(`^\s*(export\s+)?(default\s+)?(abstract\s+)?class\s+\w`)}
	jsExport = []*regexp.Regexp{
		regexp.MustCompile(`^\s*export\s`),
		regexp.MustCompile(`^\s*module\.exports\b`),
		regexp.MustCompile(`^\s*exports\.\w+\s*=`),
	}

	javaLikeMethod = regexp.MustCompile(`^\s*((public|private|protected|internal|static|final|override|virtual|abstract|async|synchronized|open|suspend)\s+)+[\w<>\[\],.?\s]*\s*\w+\s*\([^;]*\)\s*(throws [\w.,\s]+)?\{?\s*$`)
	cFunction      = regexp.MustCompile(`^[A-Za-z_][\w\s\*&:<>,]*[\s\*&]\**~?[A-Za-z_][\w:]*\s*\([^;]*\)\s*(const\s*)?\{?\s*$`)
)

// languages maps file extensions to their lexical profile.
var languages = map[string]*language{}

func register(l *language, exts ...string) {
	for _, e := range exts {
		languages[e] = l
	}
}

func init() {
	register(&language{
		name:     "go",
		comments: slashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`^func\s`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`^type\s+\w+(\[[^\]]*\])?\s+(struct|interface)\b`)},
	}, ".go")

	register(&language{
		name:     "typescript",
		comments: slashComments,
		function: jsFunction,
		class:    append([]*regexp.Regexp{regexp.MustCompile(`^\s*(export\s+)?interface\s+\w`)}, jsClass...),
		export:   jsExport,
	}, ".ts", ".tsx", ".mts", ".cts")

	register(&language{
		name:     "javascript",
		comments: slashComments,
		function: jsFunction,
		class:    jsClass,
		export:   jsExport,
	}, ".js", ".jsx", ".mjs", ".cjs", ".vue", ".svelte")

	register(&language{
		name:     "python",
		comments: hashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`^\s*(async\s+)?def\s+\w`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*class\s+\w`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^(async\s+)?def\s+[A-Za-z]\w*`), regexp.MustCompile(`^class\s+[A-Za-z]\w*`)},
	}, ".py")

	register(&language{
		name:     "rust",
		comments: slashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`\bfn\s+\w`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*(pub(\([^)]*\))?\s+)?(struct|enum|trait|union)\s+\w`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^\s*pub(\([^)]*\))?\s+(async\s+)?(unsafe\s+)?(fn|struct|enum|trait|type|const|static|mod|use|union)\b`)},
	}, ".rs")

	register(&language{
		name:     "java",
		comments: slashComments,
		function: []*regexp.Regexp{javaLikeMethod},
		class:    []*regexp.Regexp{regexp.MustCompile(`\b(class|interface|enum|record)\s+[A-Z]\w*`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^\s*public\s`)},
	}, ".java")

	register(&language{
		name:     "kotlin",
		comments: slashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`\bfun\s+(<[^>]*>\s*)?[\w.]+\s*\(`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`\b(class|interface|object)\s+[A-Z]\w*`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^(public\s+|open\s+|data\s+|sealed\s+|abstract\s+|suspend\s+|inline\s+)*(fun|class|interface|object|val|var|typealias)\s`)},
	}, ".kt", ".kts")

	register(&language{
		name:     "csharp",
		comments: slashComments,
		function: []*regexp.Regexp{javaLikeMethod},
		class:    []*regexp.Regexp{regexp.MustCompile(`\b(class|interface|struct|record|enum)\s+[A-Z]\w*`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^\s*public\s`)},
	}, ".cs")

	register(&language{
		name:     "c",
		comments: slashComments,
		function: []*regexp.Regexp{cFunction},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*(typedef\s+)?struct\s+\w+\s*\{`)},
	}, ".c", ".h")

	register(&language{
		name:     "cpp",
		comments: slashComments,
		function: []*regexp.Regexp{cFunction},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*(template\s*<[^>]*>\s*)?(class|struct)\s+\w+[^;]*$`)},
	}, ".cc", ".cpp", ".cxx", ".hpp", ".hh", ".hxx")

	register(&language{
		name:     "swift",
		comments: slashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`\bfunc\s+\w`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`\b(class|struct|protocol|enum|actor)\s+[A-Z]\w*`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`\b(public|open)\s`)},
	}, ".swift")

	register(&language{
		name:     "php",
		comments: slashComments,
		alsoHash: true,
		function: []*regexp.Regexp{regexp.MustCompile(`\bfunction\s+&?\w+\s*\(`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*(abstract\s+|final\s+)?(class|interface|trait|enum)\s+\w`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^\s*public\s`)},
	}, ".php")

	register(&language{
		name:     "ruby",
		comments: hashComments,
		function: []*regexp.Regexp{regexp.MustCompile(`^\s*def\s+`)},
		class:    []*regexp.Regexp{regexp.MustCompile(`^\s*(class|module)\s+[A-Z]`)},
		export:   []*regexp.Regexp{regexp.MustCompile(`^(class|module)\s+[A-Z]`)},
	}, ".rb")

	register(&language{
		name:     "lua",
		comments: luaComments,
		function: []*regexp.Regexp{regexp.MustCompile(`\bfunction\b`)},
	}, ".lua")
}

// languageFor returns the profile for path, or nil when path is not a
// recognised source file.
func languageFor(path string) *language {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".min.js") || strings.HasSuffix(base, ".d.ts") {
		return nil
	}
	return languages[strings.ToLower(filepath.Ext(base))]
}

// IsSource reports whether path has a recognised source extension.
func IsSource(path string) bool {
	return languageFor(path) != nil
}

// LanguageOf returns the language name for path, or "" for non-source files.
func LanguageOf(path string) string {
	if l := languageFor(path); l != nil {
		return l.name
	}
	return ""
}

func matchesAny(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
