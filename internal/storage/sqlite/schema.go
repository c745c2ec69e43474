package sqlite

// Schema is the complete SQLite schema, applied on open. All statements are
// idempotent so reopening an existing database is safe.
//
// The partial unique indexes on facts and entity_relations are what enforce
// the single-current-version invariant at the database level: a racing
// writer that tries to install a second current row for the same claim key
// hits the index and surfaces a version conflict.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id                  TEXT PRIMARY KEY,
	content             TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT 'text',
	timestamp           TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	embedding           BLOB,
	embedding_model     TEXT NOT NULL DEFAULT '',
	embedding_dimension INTEGER NOT NULL DEFAULT 0,
	context_json        TEXT,
	access_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at    TEXT,
	deleted_at          TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);

CREATE TABLE IF NOT EXISTS facts (
	id                  TEXT PRIMARY KEY,
	record_id           TEXT NOT NULL DEFAULT '',
	subject             TEXT NOT NULL,
	subject_norm        TEXT NOT NULL,
	relation            TEXT NOT NULL,
	relation_family     TEXT NOT NULL,
	object              TEXT NOT NULL DEFAULT '',
	fact_text           TEXT NOT NULL,
	confidence          REAL NOT NULL DEFAULT 0,
	document_date       TEXT NOT NULL,
	event_date          TEXT,
	temporal_expression TEXT NOT NULL DEFAULT '',
	embedding           BLOB,
	embedding_model     TEXT NOT NULL DEFAULT '',
	is_current          INTEGER NOT NULL DEFAULT 1,
	supersedes_id       TEXT NOT NULL DEFAULT '',
	superseded_by_id    TEXT NOT NULL DEFAULT '',
	evidence_count      INTEGER NOT NULL DEFAULT 1,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

-- At most one current fact per claim key (subject + relation family).
CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_current_claim
	ON facts(subject_norm, relation_family) WHERE is_current = 1;

CREATE INDEX IF NOT EXISTS idx_facts_record ON facts(record_id);
CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_norm);

CREATE TABLE IF NOT EXISTS entity_relations (
	id            TEXT PRIMARY KEY,
	source_entity TEXT NOT NULL,
	source_norm   TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	target_entity TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	valid_from    TEXT NOT NULL,
	valid_until   TEXT,
	is_current    INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL
);

-- At most one current edge per (source, relation type) pair.
CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_current_pair
	ON entity_relations(source_norm, relation_type) WHERE is_current = 1;

CREATE TABLE IF NOT EXISTS decay_states (
	record_id               TEXT PRIMARY KEY,
	stability               REAL NOT NULL,
	difficulty              REAL NOT NULL,
	state                   TEXT NOT NULL,
	reps                    INTEGER NOT NULL DEFAULT 0,
	lapses                  INTEGER NOT NULL DEFAULT 0,
	last_review             TEXT,
	scheduled_interval_days REAL NOT NULL DEFAULT 0,
	updated_at              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS review_events (
	id                TEXT PRIMARY KEY,
	record_id         TEXT NOT NULL,
	rating            INTEGER NOT NULL,
	state_before      TEXT NOT NULL,
	scheduled_days    REAL NOT NULL,
	elapsed_days      REAL NOT NULL,
	stability_before  REAL NOT NULL,
	stability_after   REAL NOT NULL,
	difficulty_before REAL NOT NULL,
	difficulty_after  REAL NOT NULL,
	retrievability    REAL NOT NULL,
	timestamp         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_record ON review_events(record_id, timestamp);
`
