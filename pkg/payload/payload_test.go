package payload_test

import (
	"encoding/json"
	"errors"
	"testing"

	"refloop/pkg/payload"
)

type plan struct {
	RefactorNeeded bool   `json:"refactorNeeded"`
	Summary        string `json:"summary"`
	Tasks          []struct {
		ID    string   `json:"id"`
		Files []string `json:"files"`
	} `json:"tasks"`
}

func TestDecode_Strategies(t *testing.T) {
	const doc = `{"refactorNeeded": true, "summary": "split", "tasks": [{"id": "t1", "files": ["a.go"]}]}`

	wrappedString, err := json.Marshal(map[string]any{
		"type":   "result",
		"result": "Plan below.\n```json\n" + doc + "\n```\nSTATUS: COMPLETE",
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		output string
	}{
		{"raw", doc},
		{"fenced", "Here is the plan:\n```json\n" + doc + "\n```\nSTATUS: COMPLETE"},
		{"bare fence", "```\n" + doc + "\n```"},
		{"prose braces", "I looked around. Result: " + doc + " -- done."},
		{"result envelope", string(wrappedString)},
		{"structured output", `{"type":"result","structured_output":` + doc + `}`},
		{"array of events", `[{"type":"system"},{"type":"result","result":` + jsonString(t, doc) + `}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p plan
			if err := payload.Decode(tt.output, payload.Planner, &p); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !p.RefactorNeeded || len(p.Tasks) != 1 || p.Tasks[0].ID != "t1" {
				t.Errorf("decoded %+v", p)
			}
		})
	}
}

func jsonString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestDecode_SkipsCandidatesThatFailSchema(t *testing.T) {
	output := "```json\n{\"refactorNeeded\": \"yes\"}\n```\n" +
		"Corrected: {\"refactorNeeded\": false, \"tasks\": []}"

	var p plan
	if err := payload.Decode(output, payload.Planner, &p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.RefactorNeeded {
		t.Error("expected the schema-valid candidate to win")
	}
}

func TestDecode_Unparseable(t *testing.T) {
	for _, output := range []string{
		"",
		"no json here",
		`{"foo": 1}`,
		"```json\n{not json}\n```",
	} {
		var p plan
		err := payload.Decode(output, payload.Planner, &p)
		if !errors.Is(err, payload.ErrUnparseable) {
			t.Errorf("Decode(%q) err = %v, want ErrUnparseable", output, err)
		}
	}
}

func TestCandidates_OrderAndBraceQuoting(t *testing.T) {
	output := `{"a": "}{"}` + "\n```json\n{\"b\": 1}\n```"

	got := payload.Candidates(output)
	if len(got) < 2 {
		t.Fatalf("candidates = %v", got)
	}
	if got[0] != `{"b": 1}` {
		t.Errorf("first candidate = %q, want fenced block (raw text is not valid JSON)", got[0])
	}
	if got[1] != `{"a": "}{"}` {
		t.Errorf("second candidate = %q, want brace-scanned object", got[1])
	}
}

func TestCalibrationSchema(t *testing.T) {
	var v map[string][]string
	if err := payload.Decode(`{"monolith": ["a.go"], "debt": []}`, payload.Calibration, &v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(v["monolith"]) != 1 {
		t.Errorf("monolith = %v", v["monolith"])
	}
	if err := payload.Decode(`{"other": []}`, payload.Calibration, &v); !errors.Is(err, payload.ErrUnparseable) {
		t.Errorf("empty verdict err = %v, want ErrUnparseable", err)
	}
}

func TestOrchestratorSchema_RejectsWaveZero(t *testing.T) {
	err := payload.Orchestrator.Validate(`{"assignments": [{"taskId": "t1", "wave": 0, "files": ["a.go"]}]}`)
	if err == nil {
		t.Error("wave 0 must fail validation")
	}
}
