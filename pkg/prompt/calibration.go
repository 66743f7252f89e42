package prompt

import (
	"fmt"
	"strings"

	"refloop/pkg/backlog"
)

// ReviewItem is one heuristic candidate shown to the calibration reviewer.
type ReviewItem struct {
	Category string
	Path     string
	Metrics  string
	Snippet  string
}

// Calibration builds the read-only review prompt for items.
func Calibration(items []ReviewItem) string {
	var b strings.Builder

	section(&b, "Role", "You review refactor candidates proposed by a static heuristic. Read files as needed; do not edit anything.")
	section(&b, "Categories", bullets(
		"`"+backlog.Monolith+"`: a file that mixes several responsibilities and should be split. A large but cohesive module is not a monolith.",
		"`"+backlog.Coupling+"`: a file that too much of the codebase depends on, or that depends on too much. Re-export facades are not coupling problems.",
		"`"+backlog.Debt+"`: a file with stale TODO/FIXME markers or commented-out code worth cleaning up.",
		"`"+backlog.Comment+"`: a file whose comments are mostly noise: decorative banners, restated code, boilerplate.",
	))

	var cands strings.Builder
	for i, it := range items {
		fmt.Fprintf(&cands, "### %d. `%s` (%s)\n\n%s\n\n", i+1, it.Path, it.Category, it.Metrics)
		if it.Snippet != "" {
			cands.WriteString(fenced(it.Snippet))
			cands.WriteString("\n\n")
		}
	}
	section(&b, "Candidates", strings.TrimRight(cands.String(), "\n"))

	section(&b, "Output", "For every category you reviewed, list the paths that are true positives. "+
		"An empty list rejects every candidate of that category. Only use paths from the candidates above. "+
		"Reply with a single JSON object and nothing else:\n\n"+fenced(`{
  "monolith": ["path/a.go"],
  "coupling": [],
  "debt": ["path/b.py"],
  "comment": []
}`))

	return b.String()
}
