package postgres

// Schema is the base PostgreSQL schema, applied on open. All statements are
// idempotent. Embeddings are stored as BYTEA for portability; when the
// pgvector extension is available MigrationPgvector adds a typed vector
// column used for nearest-neighbor search.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id                  TEXT PRIMARY KEY,
	content             TEXT NOT NULL,
	source              TEXT NOT NULL DEFAULT 'text',
	timestamp           TIMESTAMPTZ NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	embedding           BYTEA,
	embedding_model     TEXT NOT NULL DEFAULT '',
	embedding_dimension INTEGER NOT NULL DEFAULT 0,
	context_json        JSONB,
	access_count        INTEGER NOT NULL DEFAULT 0,
	last_accessed_at    TIMESTAMPTZ,
	deleted_at          TIMESTAMPTZ
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
	confidence          DOUBLE PRECISION NOT NULL DEFAULT 0,
	document_date       TIMESTAMPTZ NOT NULL,
	event_date          TIMESTAMPTZ,
	temporal_expression TEXT NOT NULL DEFAULT '',
	embedding           BYTEA,
	embedding_model     TEXT NOT NULL DEFAULT '',
	is_current          BOOLEAN NOT NULL DEFAULT TRUE,
	supersedes_id       TEXT NOT NULL DEFAULT '',
	superseded_by_id    TEXT NOT NULL DEFAULT '',
	evidence_count      INTEGER NOT NULL DEFAULT 1,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_current_claim
	ON facts(subject_norm, relation_family) WHERE is_current;

CREATE INDEX IF NOT EXISTS idx_facts_record ON facts(record_id);
CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(subject_norm);

CREATE TABLE IF NOT EXISTS entity_relations (
	id            TEXT PRIMARY KEY,
	source_entity TEXT NOT NULL,
	source_norm   TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	target_entity TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	valid_from    TIMESTAMPTZ NOT NULL,
	valid_until   TIMESTAMPTZ,
	is_current    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_relations_current_pair
	ON entity_relations(source_norm, relation_type) WHERE is_current;

CREATE TABLE IF NOT EXISTS decay_states (
	record_id               TEXT PRIMARY KEY,
	stability               DOUBLE PRECISION NOT NULL,
	difficulty              DOUBLE PRECISION NOT NULL,
	state                   TEXT NOT NULL,
	reps                    INTEGER NOT NULL DEFAULT 0,
	lapses                  INTEGER NOT NULL DEFAULT 0,
	last_review             TIMESTAMPTZ,
	scheduled_interval_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS review_events (
	id                TEXT PRIMARY KEY,
	record_id         TEXT NOT NULL,
	rating            INTEGER NOT NULL,
	state_before      TEXT NOT NULL,
	scheduled_days    DOUBLE PRECISION NOT NULL,
	elapsed_days      DOUBLE PRECISION NOT NULL,
	stability_before  DOUBLE PRECISION NOT NULL,
	stability_after   DOUBLE PRECISION NOT NULL,
	difficulty_before DOUBLE PRECISION NOT NULL,
	difficulty_after  DOUBLE PRECISION NOT NULL,
	retrievability    DOUBLE PRECISION NOT NULL,
	timestamp         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_record ON review_events(record_id, timestamp);
`

// MigrationPgvector adds the typed vector column used for cosine-distance
// nearest-neighbor search. Applied only when the pgvector extension loads.
// The dimension matches the default embedding provider (1536).
const MigrationPgvector = `
ALTER TABLE facts ADD COLUMN IF NOT EXISTS embedding_vec vector(1536);
CREATE INDEX IF NOT EXISTS idx_facts_embedding_vec
	ON facts USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100);
`
