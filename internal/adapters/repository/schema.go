package repository

// versionSQL creates the migration ledger itself.
const versionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at INTEGER NOT NULL
);`

// initialSQL creates every table the service needs. Statements are
// idempotent so databases that predate the ledger upgrade cleanly.
// Timestamps are unix nanoseconds.
const initialSQL = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	passage    TEXT NOT NULL DEFAULT '',
	sub_items  TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS judgments (
	id           TEXT PRIMARY KEY,
	item_id      TEXT NOT NULL,
	worker_id    TEXT NOT NULL,
	sub_index    INTEGER NOT NULL,
	label        TEXT NOT NULL CHECK (label IN ('Correct', 'Incorrect', 'Doubt')),
	submitted_at INTEGER NOT NULL,
	reserved_at  INTEGER NOT NULL,
	latency_ms   INTEGER NOT NULL DEFAULT 0,
	UNIQUE (worker_id, item_id, sub_index)
);
CREATE INDEX IF NOT EXISTS idx_judgments_item ON judgments(item_id);

CREATE TABLE IF NOT EXISTS reservations (
	item_id     TEXT NOT NULL,
	worker_id   TEXT NOT NULL,
	reserved_at INTEGER NOT NULL,
	PRIMARY KEY (item_id, worker_id)
);
CREATE INDEX IF NOT EXISTS idx_reservations_worker ON reservations(worker_id);
CREATE INDEX IF NOT EXISTS idx_reservations_reserved_at ON reservations(reserved_at);

CREATE TABLE IF NOT EXISTS skips (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	worker_id  TEXT NOT NULL,
	reason     TEXT NOT NULL CHECK (reason IN ('timeout', 'invalid_content', 'manual_skip')),
	skipped_at INTEGER NOT NULL,
	UNIQUE (item_id, worker_id, reason)
);
CREATE INDEX IF NOT EXISTS idx_skips_worker ON skips(worker_id);

CREATE TABLE IF NOT EXISTS retirements (
	item_id    TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'retired',
	retired_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS doubts (
	item_id   TEXT NOT NULL,
	sub_index INTEGER NOT NULL,
	worker_id TEXT NOT NULL,
	question  TEXT NOT NULL DEFAULT '',
	answer    TEXT NOT NULL DEFAULT '',
	raised_at INTEGER NOT NULL,
	PRIMARY KEY (item_id, sub_index, worker_id)
);

CREATE TABLE IF NOT EXISTS workers (
	id           TEXT PRIMARY KEY,
	auth_subject TEXT UNIQUE,
	first_name   TEXT NOT NULL,
	last_name    TEXT NOT NULL,
	phone        TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	item_id    TEXT NOT NULL,
	sub_index  INTEGER NOT NULL DEFAULT -1,
	worker_id  TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_item ON notes(item_id);

CREATE TABLE IF NOT EXISTS edit_queue (
	item_id     TEXT PRIMARY KEY,
	sub_indexes TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'done')),
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS activity (
	id        TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	item_id   TEXT NOT NULL DEFAULT '',
	action    TEXT NOT NULL,
	detail    TEXT NOT NULL DEFAULT '{}',
	at        INTEGER NOT NULL
);
`

// migration is one schema step.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations run in order; applied versions are recorded in schema_version.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL:     initialSQL,
	},
	{
		Version: 2,
		Name:    "activity_worker_index",
		SQL:     `CREATE INDEX IF NOT EXISTS idx_activity_worker_at ON activity(worker_id, at);`,
	},
}
