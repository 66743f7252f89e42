package eventlog

// SchemaDDL creates the run history tables.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT    NOT NULL,
	type           TEXT    NOT NULL,
	target_dir     TEXT    NOT NULL,
	pass           INTEGER NOT NULL DEFAULT 0,
	planned_passes INTEGER NOT NULL DEFAULT 0,
	status         TEXT    NOT NULL DEFAULT '',
	backlog        TEXT    NOT NULL DEFAULT '',
	score          REAL    NOT NULL DEFAULT 0,
	payload        TEXT    NOT NULL DEFAULT '',
	created_at     TEXT    NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_target ON events(target_dir, id);
`

// Event types.
const (
	TypeRunStart    = "run_start"
	TypeCalibration = "calibration"
	TypePass        = "pass"
	TypeVerify      = "verify"
	TypeRunEnd      = "run_end"
)

// FileName is the history database name inside the state directory.
const FileName = "history.db"

const timeLayout = "2006-01-02 15:04:05"
