package scan

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	todoMarker = regexp.MustCompile(`\b(TODO|FIXME|HACK|XXX)\b`)

	// codeLike matches comment text that reads as disabled source code.
	codeLike = []*regexp.Regexp{
		regexp.MustCompile(`[;{}]\s*$`),
		regexp.MustCompile(`^(if|for|while|switch)\s*\(.*\)`),
		regexp.MustCompile(`^(return|var|let|const|import|package)\s+[\w.$"'({\[]+\s*(=|;|$)`),
		regexp.MustCompile(`^(func|def|class)\s+\w+\s*[(:{]`),
		regexp.MustCompile(`^(fmt|console|log|self|this|os|sys)\.\w+`),
		regexp.MustCompile(`^(print|println|printf)\(`),
		regexp.MustCompile(`^[A-Za-z_][\w.\[\]]*\s*(:=|\+=|-=|=)\s*\S+`),
		regexp.MustCompile(`^[A-Za-z_][\w.]*\([^)]*\)\s*;?$`),
	}

	boilerplate = []string{
		"auto-generated",
		"autogenerated",
		"generated by",
		"do not edit",
		"end of file",
		"end of class",
		"end of function",
		"constructor",
		"getter",
		"setter",
		"default constructor",
		"increment counter",
		"return the result",
		"import statements",
		"imports",
		"variables",
		"main function",
		"helper function",
		"added by",
		"changed by",
		"removed by",
	}
)

// pragma reports lines that look like comments but carry tool directives.
func pragma(text string) bool {
	switch {
	case strings.HasPrefix(text, "go:"),
		strings.HasPrefix(text, "+build"),
		strings.HasPrefix(text, "!"),
		strings.HasPrefix(text, "-*-"),
		strings.HasPrefix(text, "region"),
		strings.HasPrefix(text, "endregion"),
		strings.HasPrefix(text, "type:"),
		strings.HasPrefix(text, "noqa"),
		strings.HasPrefix(text, "nolint"),
		strings.HasPrefix(text, "eslint-"),
		strings.HasPrefix(text, "@ts-"),
		strings.HasPrefix(text, "pylint:"),
		strings.HasPrefix(text, "prettier-ignore"),
		strings.HasPrefix(text, "istanbul "),
		strings.HasPrefix(text, "coding:"),
		strings.HasPrefix(text, "vim:"):
		return true
	}
	return false
}

// lowSignal reports whether a comment body adds nothing for a reader:
// empty, decorative, commented-out code, or stock boilerplate phrasing.
// text is the comment with its delimiters already removed.
func lowSignal(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if decorative(t) {
		return true
	}
	for _, re := range codeLike {
		if re.MatchString(t) {
			return true
		}
	}
	lower := strings.ToLower(strings.TrimRight(t, ".:!"))
	for _, phrase := range boilerplate {
		if lower == phrase || strings.HasPrefix(lower, phrase+" ") && len(lower) < len(phrase)+12 {
			return true
		}
		if strings.Contains(phrase, " ") && strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// decorative reports separator lines such as "-----" or "=== * ===".
func decorative(t string) bool {
	letters := 0
	for _, r := range t {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters++
		}
	}
	if letters == 0 {
		return true
	}
	runs := 0
	for _, sep := range []string{"---", "===", "***", "###", "///", "~~~", "___", "+++"} {
		runs += strings.Count(t, sep)
	}
	return runs >= 2 && letters*3 < len(t)
}

// hasTodo reports whether a comment body carries a debt marker.
func hasTodo(text string) bool {
	return todoMarker.MatchString(text)
}
