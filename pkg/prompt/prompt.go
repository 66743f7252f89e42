// Package prompt assembles the markdown prompts sent to AI agents: the
// single-call pass prompt, the planner, orchestrator and worker prompts of a
// decomposed pass, and the calibration review prompt.
package prompt

import (
	"fmt"
	"strings"

	"refloop/pkg/aiexec"
	"refloop/pkg/backlog"
)

// section writes a markdown section (## header + body) to the builder.
func section(b *strings.Builder, header, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", header, body)
}

func bullets(lines ...string) string {
	return "- " + strings.Join(lines, "\n- ")
}

// statusBody tells an editing agent how to end its output.
func statusBody() string {
	return fmt.Sprintf(
		"End your output with exactly one line:\n\n```\n%[1]s: CONTINUE\n```\n\nif refactor work clearly remains after your changes, otherwise\n\n```\n%[1]s: COMPLETE\n```",
		aiexec.StatusTag,
	)
}

// safetyRules apply to every write-enabled call.
var safetyRules = []string{
	"Preserve behaviour: refactor structure, never change what the program does.",
	"Keep public APIs stable unless every caller in the repository is updated in the same change.",
	"Do not delete directories. Do not delete files you did not split or merge yourself.",
	"Do not commit, push or rewrite git history.",
	"Do not add dependencies.",
}

// PassParams are the inputs of one single-call pass prompt.
type PassParams struct {
	TargetDir            string
	Pass                 int
	PlannedPasses        int
	Scan                 backlog.RepoScan
	Backlog              backlog.Backlog
	VerificationFailures []string // actionable failures of the previous pass
}

// Pass builds the prompt for one non-decomposed refactor pass.
func Pass(p PassParams) string {
	var b strings.Builder

	section(&b, "Role", "You are a senior engineer performing a bounded, behaviour-preserving refactor pass on this repository.")

	section(&b, "Pass", fmt.Sprintf(
		"- **Repository:** `%s`\n- **Pass:** %d of %d\n- **Stack:** %s\n- **Shape:** %s\n- **Backlog:** %s",
		p.TargetDir, p.Pass, p.PlannedPasses, stack(p.Scan.TechStack), p.Scan.ProjectShape, p.Backlog,
	))

	section(&b, "Backlog", Candidates(p.Scan))

	if len(p.VerificationFailures) > 0 {
		section(&b, "Verification Failures",
			"The previous pass left these checks failing. Fix them first.\n\n"+fenced(strings.Join(p.VerificationFailures, "\n\n")))
	}

	section(&b, "Approach", bullets(
		"Work through the candidates in the order listed; highest score first.",
		"Split monoliths into cohesive modules along their natural seams.",
		"Reduce coupling by narrowing imports and moving shared helpers next to their callers.",
		"Resolve TODO/FIXME markers you can resolve safely; delete comments that restate the code.",
		"Run the project's own build and test commands before finishing.",
	))

	section(&b, "Rules", bullets(safetyRules...))
	section(&b, "Status", statusBody())

	return b.String()
}

// Candidates renders the candidate lists of s as markdown.
func Candidates(s backlog.RepoScan) string {
	var b strings.Builder
	write := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}

	var mono []string
	for _, f := range s.MonolithCandidates {
		mono = append(mono, fmt.Sprintf("`%s`: %d lines, %d functions, %d classes, fan-in %d",
			f.Path, f.LineCount, f.FunctionCount, f.ClassCount, f.FanIn))
	}
	write("Monoliths", mono)
	write("Coupling Hotspots", hotspotLines(s.CouplingCandidates))
	write("Debt Hotspots", hotspotLines(s.DebtCandidates))

	var comments []string
	for _, f := range s.CommentCleanupCandidates {
		comments = append(comments, fmt.Sprintf("`%s`: %d comment lines, %d low-signal",
			f.Path, f.CommentLines, f.LowSignalCommentLines))
	}
	write("Comment Cleanup", comments)

	if b.Len() == 0 {
		return "No candidates."
	}
	return strings.TrimRight(b.String(), "\n")
}

func hotspotLines(hs []backlog.Hotspot) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		line := fmt.Sprintf("`%s` (score %.2f): %s", h.Path, h.Score, strings.Join(h.Reasons, "; "))
		if h.SplitHypothesis != "" {
			line += ". " + h.SplitHypothesis
		}
		out = append(out, line)
	}
	return out
}

func stack(s []string) string {
	if len(s) == 0 {
		return "unknown"
	}
	return strings.Join(s, ", ")
}

func fenced(s string) string {
	return "```\n" + strings.TrimRight(s, "\n") + "\n```"
}
