package sqlite

// Schema creates every table idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS targets (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	address           TEXT NOT NULL,
	canonical_address TEXT NOT NULL UNIQUE,
	host              TEXT NOT NULL,
	name              TEXT NOT NULL,
	environment       TEXT NOT NULL DEFAULT 'testing' CHECK (environment IN ('testing', 'production')),
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_environment ON targets (environment);

CREATE TABLE IF NOT EXISTS outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id     INTEGER NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	status_code   INTEGER,
	status_text   TEXT,
	response_time INTEGER NOT NULL,
	is_up         INTEGER NOT NULL,
	location      TEXT,
	error_message TEXT,
	source        TEXT NOT NULL DEFAULT 'server',
	checked_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_target_checked_at ON outcomes (target_id, checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_outcomes_checked_at ON outcomes (checked_at);

CREATE TABLE IF NOT EXISTS archived_outcomes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id     INTEGER NOT NULL UNIQUE,
	target_id     INTEGER NOT NULL,
	status_code   INTEGER,
	status_text   TEXT,
	response_time INTEGER NOT NULL,
	is_up         INTEGER NOT NULL,
	location      TEXT,
	error_message TEXT,
	source        TEXT NOT NULL DEFAULT 'server',
	checked_at    TEXT NOT NULL,
	archived_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_outcomes_target_checked_at ON archived_outcomes (target_id, checked_at);

CREATE TABLE IF NOT EXISTS admin_users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
`
