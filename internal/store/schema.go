package store

// schemaV1 creates every table named in spec §6: memories (+ its FTS5 shadow
// and the triggers that keep it in sync per (M5)), sessions, session_events,
// executions — plus the indexes §6 calls out as required for correctness and
// performance.
const schemaV1 = `
CREATE TABLE memories (
	key             TEXT PRIMARY KEY,
	value           BLOB NOT NULL,
	is_compressed   INTEGER NOT NULL DEFAULT 0,
	type            TEXT NOT NULL DEFAULT '',
	tags            TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	accessed_at     DATETIME NOT NULL,
	access_count    INTEGER NOT NULL DEFAULT 0,
	update_count    INTEGER NOT NULL DEFAULT 0,
	storage_tier    TEXT NOT NULL DEFAULT 'warm',
	memory_score    REAL NOT NULL DEFAULT 0.5,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	checksum        TEXT NOT NULL DEFAULT '',
	is_private       INTEGER NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE memories_fts USING fts5(
	key UNINDEXED,
	content,
	tags
);

CREATE TRIGGER memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, key, content, tags)
	VALUES (new.rowid, new.key, new.key || ' ' || new.type || ' ' ||
		CASE WHEN new.is_compressed = 0 THEN CAST(new.value AS TEXT) ELSE '' END, new.tags);
END;

CREATE TRIGGER memories_fts_update AFTER UPDATE ON memories BEGIN
	UPDATE memories_fts SET key = new.key, content = new.key || ' ' || new.type || ' ' ||
		CASE WHEN new.is_compressed = 0 THEN CAST(new.value AS TEXT) ELSE '' END, tags = new.tags
	WHERE rowid = new.rowid;
END;

CREATE TRIGGER memories_fts_delete AFTER DELETE ON memories BEGIN
	DELETE FROM memories_fts WHERE rowid = old.rowid;
END;

CREATE INDEX idx_memories_tier_score ON memories(storage_tier, memory_score DESC);
CREATE INDEX idx_memories_accessed ON memories(accessed_at DESC, access_count DESC);
CREATE INDEX idx_memories_type ON memories(type);

CREATE TABLE sessions (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL DEFAULT '',
	started_at        DATETIME NOT NULL,
	last_accessed     DATETIME NOT NULL,
	expires_at        DATETIME NOT NULL,
	data              TEXT NOT NULL DEFAULT '{}',
	initial_context   TEXT NOT NULL DEFAULT '{}',
	is_active         INTEGER NOT NULL DEFAULT 1,
	terminated_reason TEXT,
	interaction_count INTEGER NOT NULL DEFAULT 0,
	memory_ops_count  INTEGER NOT NULL DEFAULT 0,
	execution_count   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_sessions_active ON sessions(last_accessed DESC) WHERE is_active = 1;
CREATE INDEX idx_sessions_expires ON sessions(expires_at) WHERE is_active = 1;

CREATE TABLE session_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL
);

CREATE INDEX idx_session_events_session ON session_events(session_id, created_at);

CREATE TABLE executions (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT,
	code                TEXT NOT NULL,
	language            TEXT NOT NULL,
	code_hash           TEXT NOT NULL,
	priority            INTEGER NOT NULL DEFAULT 5,
	status              TEXT NOT NULL DEFAULT 'queued',
	worker_id           TEXT,
	pid                 INTEGER,
	created_at          DATETIME NOT NULL,
	queued_at           DATETIME NOT NULL,
	claimed_at          DATETIME,
	started_at          DATETIME,
	completed_at        DATETIME,
	exit_code           INTEGER,
	error_message       TEXT,
	max_memory_mb       INTEGER,
	cpu_time_ms         INTEGER,
	wall_time_ms        INTEGER,
	output_file         TEXT NOT NULL DEFAULT '',
	error_file          TEXT NOT NULL DEFAULT '',
	overflow_file       TEXT NOT NULL DEFAULT '',
	output_size_bytes   INTEGER NOT NULL DEFAULT 0,
	error_size_bytes    INTEGER NOT NULL DEFAULT 0,
	output_truncated    INTEGER NOT NULL DEFAULT 0,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	max_retries         INTEGER NOT NULL DEFAULT 3
);

CREATE INDEX idx_executions_queue ON executions(status, priority DESC, created_at ASC) WHERE status = 'queued';
CREATE INDEX idx_executions_running ON executions(worker_id, status) WHERE status = 'running';
CREATE INDEX idx_executions_session ON executions(session_id, created_at DESC);
`
