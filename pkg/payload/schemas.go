package payload

// Calibration is the verdict of a read-only calibration call: for each
// category, the reviewed paths that are true positives. A category that is
// absent was not judged.
var Calibration = MustCompile("calibration", `{
  "type": "object",
  "properties": {
    "monolith": {"type": "array", "items": {"type": "string"}},
    "coupling": {"type": "array", "items": {"type": "string"}},
    "debt":     {"type": "array", "items": {"type": "string"}},
    "comment":  {"type": "array", "items": {"type": "string"}}
  },
  "anyOf": [
    {"required": ["monolith"]},
    {"required": ["coupling"]},
    {"required": ["debt"]},
    {"required": ["comment"]}
  ]
}`)

// Planner is the output of the planning call.
var Planner = MustCompile("planner", `{
  "type": "object",
  "required": ["refactorNeeded", "tasks"],
  "properties": {
    "refactorNeeded": {"type": "boolean"},
    "summary": {"type": "string"},
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "files"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "title": {"type": "string"},
          "files": {"type": "array", "items": {"type": "string"}},
          "instructions": {"type": "string"}
        }
      }
    }
  }
}`)

// Orchestrator is the output of the wave assignment call.
var Orchestrator = MustCompile("orchestrator", `{
  "type": "object",
  "required": ["assignments"],
  "properties": {
    "summary": {"type": "string"},
    "assignments": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["taskId", "wave", "files"],
        "properties": {
          "taskId": {"type": "string", "minLength": 1},
          "wave": {"type": "integer", "minimum": 1},
          "files": {"type": "array", "minItems": 1, "items": {"type": "string"}},
          "workerInstructions": {"type": "string"}
        }
      }
    }
  }
}`)
