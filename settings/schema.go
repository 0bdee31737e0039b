package settings

// schema is applied on every Open; CREATE IF NOT EXISTS keeps it idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS action_log (
	entry_id   TEXT PRIMARY KEY,
	action     TEXT NOT NULL,
	record_id  TEXT,
	url        TEXT,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_log_created
	ON action_log (created_at DESC);
`
