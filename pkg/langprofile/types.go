// Package langprofile detects the languages and layout of a repository and
// the lint, type-check and test commands that verify it.
package langprofile

import "fmt"

// Tool is a single verification tool.
type Tool struct {
	Name string // display name (e.g. "golangci-lint")
	Cmd  string // shell command, run from the repository root
}

// Profile describes how one language is verified.
type Profile struct {
	Language  string            // canonical name (e.g. "go", "python", "typescript")
	Detect    func(string) bool // reports whether a repository root uses this language
	Linters   []Tool            // read-only checks, in order
	TypeCheck *Tool             // optional
	TestCmd   string
}

// Validate checks that required fields are set. Returns an error describing
// the first missing field.
func (p Profile) Validate() error {
	if p.Language == "" {
		return fmt.Errorf("langprofile: Language is required")
	}
	if p.Detect == nil {
		return fmt.Errorf("langprofile: Detect function is required")
	}
	if p.TestCmd == "" {
		return fmt.Errorf("langprofile: TestCmd is required")
	}
	return nil
}

// Commands returns the verification commands of p: linters, then the type
// checker, then tests. Formatters are never included; they edit files.
func (p Profile) Commands() []string {
	var out []string
	for _, l := range p.Linters {
		out = append(out, l.Cmd)
	}
	if p.TypeCheck != nil {
		out = append(out, p.TypeCheck.Cmd)
	}
	if p.TestCmd != "" {
		out = append(out, p.TestCmd)
	}
	return out
}
