package schedule

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// PlannerTask is a proposed unit of work that owns a set of files.
type PlannerTask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Files        []string `json:"files"`
	Instructions string   `json:"instructions,omitempty"`
}

// WaveAssignment schedules one task into a wave. Within one wave no file
// appears in more than one assignment.
type WaveAssignment struct {
	TaskID             string   `json:"taskId"`
	Wave               int      `json:"wave"`
	Files              []string `json:"files"`
	WorkerInstructions string   `json:"workerInstructions,omitempty"`
}

// Orchestrator output problems.
var (
	errUnknownTask   = errors.New("assignment for unknown task")
	errMissingTask   = errors.New("task not assigned")
	errRepeatedTask  = errors.New("task assigned twice")
	errFileConflict  = errors.New("file assigned twice in one wave")
	errWaveTooLarge  = errors.New("wave exceeds worker limit")
	errNoAssignments = errors.New("no assignments")
)

// GreedyWaves assigns tasks in order to the first wave that has room and
// shares no file with the task, opening a new wave otherwise.
func GreedyWaves(tasks []PlannerTask, maxWorkers int) []WaveAssignment {
	maxWorkers = max(1, maxWorkers)

	type wave struct {
		files map[string]bool
		size  int
	}
	var waves []*wave
	out := make([]WaveAssignment, 0, len(tasks))

	for _, t := range tasks {
		placed := -1
		for i, w := range waves {
			if w.size < maxWorkers && !slices.ContainsFunc(t.Files, func(f string) bool { return w.files[f] }) {
				placed = i
				break
			}
		}
		if placed < 0 {
			waves = append(waves, &wave{files: map[string]bool{}})
			placed = len(waves) - 1
		}
		w := waves[placed]
		for _, f := range t.Files {
			w.files[f] = true
		}
		w.size++
		out = append(out, WaveAssignment{
			TaskID:             t.ID,
			Wave:               placed + 1,
			Files:              slices.Clone(t.Files),
			WorkerInstructions: t.Instructions,
		})
	}
	return out
}

// normalizeAssignments checks an orchestrator's assignments against the
// planner tasks. Each assignment takes its task's file list, so ownership is
// always the planner's. Waves are renumbered to 1..n in order.
func normalizeAssignments(tasks []PlannerTask, in []WaveAssignment, maxWorkers int) ([]WaveAssignment, error) {
	if len(in) == 0 {
		return nil, errNoAssignments
	}
	byID := make(map[string]PlannerTask, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	seen := make(map[string]bool, len(in))
	out := make([]WaveAssignment, 0, len(in))
	for _, a := range in {
		t, ok := byID[a.TaskID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownTask, a.TaskID)
		}
		if seen[a.TaskID] {
			return nil, fmt.Errorf("%w: %s", errRepeatedTask, a.TaskID)
		}
		seen[a.TaskID] = true
		instr := a.WorkerInstructions
		if strings.TrimSpace(instr) == "" {
			instr = t.Instructions
		}
		out = append(out, WaveAssignment{TaskID: t.ID, Wave: a.Wave, Files: slices.Clone(t.Files), WorkerInstructions: instr})
	}
	for _, t := range tasks {
		if !seen[t.ID] {
			return nil, fmt.Errorf("%w: %s", errMissingTask, t.ID)
		}
	}

	renumber(out)
	if err := CheckWaves(out, maxWorkers); err != nil {
		return nil, err
	}
	return out, nil
}

// renumber maps the distinct wave numbers of as onto 1..n, keeping order.
func renumber(as []WaveAssignment) {
	var nums []int
	for _, a := range as {
		nums = append(nums, a.Wave)
	}
	slices.Sort(nums)
	nums = slices.Compact(nums)
	for i := range as {
		as[i].Wave = slices.Index(nums, as[i].Wave) + 1
	}
}

// CheckWaves verifies that no wave repeats a file or holds more than
// maxWorkers assignments.
func CheckWaves(as []WaveAssignment, maxWorkers int) error {
	files := map[int]map[string]string{}
	sizes := map[int]int{}
	for _, a := range as {
		if files[a.Wave] == nil {
			files[a.Wave] = map[string]string{}
		}
		for _, f := range a.Files {
			if owner, dup := files[a.Wave][f]; dup {
				return fmt.Errorf("%w: %s in wave %d (%s, %s)", errFileConflict, f, a.Wave, owner, a.TaskID)
			}
			files[a.Wave][f] = a.TaskID
		}
		sizes[a.Wave]++
		if sizes[a.Wave] > max(1, maxWorkers) {
			return fmt.Errorf("%w: wave %d has %d tasks, limit %d", errWaveTooLarge, a.Wave, sizes[a.Wave], maxWorkers)
		}
	}
	return nil
}

// groupWaves returns the assignments of each wave in wave order.
func groupWaves(as []WaveAssignment) [][]WaveAssignment {
	var n int
	for _, a := range as {
		n = max(n, a.Wave)
	}
	waves := make([][]WaveAssignment, n)
	for _, a := range as {
		waves[a.Wave-1] = append(waves[a.Wave-1], a)
	}
	return slices.DeleteFunc(waves, func(w []WaveAssignment) bool { return len(w) == 0 })
}

// cleanTasks drops tasks without files, normalizes and dedupes file paths,
// and gives repeated IDs a unique suffix.
func cleanTasks(tasks []PlannerTask, newID func() string) []PlannerTask {
	ids := make(map[string]bool, len(tasks))
	out := make([]PlannerTask, 0, len(tasks))
	for _, t := range tasks {
		var files []string
		for _, f := range t.Files {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			f = filepath.ToSlash(filepath.Clean(f))
			if !slices.Contains(files, f) {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			continue
		}
		t.Files = files
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" || ids[t.ID] {
			t.ID = strings.TrimPrefix(t.ID+"-", "-") + newID()
		}
		ids[t.ID] = true
		out = append(out, t)
	}
	return out
}
