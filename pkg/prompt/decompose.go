package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task is a planner task as rendered into orchestrator and worker prompts.
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Files        []string `json:"files"`
	Instructions string   `json:"instructions,omitempty"`
}

// Planner builds the read-only planning prompt for a pass described by brief.
func Planner(brief string, maxWorkers int) string {
	var b strings.Builder

	section(&b, "Role", "You are the planner of a parallel refactor pass. Read the repository; do not edit anything.")
	section(&b, "Pass Brief", brief)
	section(&b, "Task Rules", bullets(
		"Split the work into independent tasks, each owning an explicit list of repository-relative file paths.",
		"A task may only edit, create or delete the files it lists. List new files too.",
		fmt.Sprintf("Prefer tasks whose files do not overlap so up to %d workers can run at once.", maxWorkers),
		"Keep each task small enough for one focused editing session.",
		"If nothing in the brief is worth changing, set refactorNeeded to false and return no tasks.",
	))
	section(&b, "Output", "Reply with a single JSON object and nothing else:\n\n"+fenced(`{
  "refactorNeeded": true,
  "summary": "one sentence",
  "tasks": [
    {"id": "t1", "title": "short title", "files": ["path/a.go"], "instructions": "what to change"}
  ]
}`))

	return b.String()
}

// Orchestrator builds the read-only wave assignment prompt for tasks.
func Orchestrator(tasks []Task, maxWorkers int) string {
	var b strings.Builder

	section(&b, "Role", "You are the orchestrator of a parallel refactor pass. Schedule the planner's tasks into waves; do not edit anything.")

	data, _ := json.MarshalIndent(tasks, "", "  ")
	section(&b, "Tasks", fenced(string(data)))

	section(&b, "Scheduling Rules", bullets(
		"Waves run one after another. Tasks in the same wave run at the same time.",
		"Two tasks in the same wave must never share a file.",
		fmt.Sprintf("A wave holds at most %d tasks.", maxWorkers),
		"Assign every task exactly once, using its id as taskId, and copy its files.",
		"Waves are numbered from 1.",
		"Put tasks whose work depends on another task's result in a later wave.",
	))
	section(&b, "Output", "Reply with a single JSON object and nothing else:\n\n"+fenced(`{
  "summary": "one sentence",
  "assignments": [
    {"taskId": "t1", "wave": 1, "files": ["path/a.go"], "workerInstructions": "what to change"}
  ]
}`))

	return b.String()
}

// WorkerParams are the inputs of one worker prompt.
type WorkerParams struct {
	TaskID       string
	Title        string
	Wave         int
	Waves        int
	Files        []string
	Instructions string
}

// Worker builds the write-enabled prompt for one scheduled task.
func Worker(p WorkerParams) string {
	var b strings.Builder

	section(&b, "Role", "You are a refactor worker. Other workers are editing other files of this repository at the same time.")

	title := p.Title
	if title == "" {
		title = p.TaskID
	}
	section(&b, "Task", fmt.Sprintf("- **ID:** %s\n- **Title:** %s\n- **Wave:** %d of %d", p.TaskID, title, p.Wave, p.Waves))

	owned := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		owned = append(owned, "`"+f+"`")
	}
	section(&b, "Owned Files", bullets(owned...))

	if p.Instructions != "" {
		section(&b, "Instructions", p.Instructions)
	}

	section(&b, "Constraints", bullets(append([]string{
		"Edit only the files listed under Owned Files. Reading other files is fine.",
		"Do not spawn subagents or delegate work.",
		"Do not run formatters or code generators over the whole repository.",
	}, safetyRules...)...))
	section(&b, "Status", statusBody())

	return b.String()
}
