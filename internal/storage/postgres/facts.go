package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// maxChainLength caps supersede-chain walks. A chain longer than this is
// treated as corruption rather than followed forever.
const maxChainLength = 50

const factColumns = `id, record_id, subject, relation, relation_family, object,
	fact_text, confidence, document_date, event_date, temporal_expression,
	embedding, embedding_model, is_current, supersedes_id, superseded_by_id,
	evidence_count, created_at, updated_at`

// InsertFact inserts a fact as the current version for its claim key.
// A racing insert for the same claim key hits the partial unique index and
// surfaces storage.ErrVersionConflict.
func (s *Store) InsertFact(ctx context.Context, fact *types.Fact) error {
	if fact == nil {
		return storage.ErrInvalidInput
	}
	if err := fact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now()
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = now
	}
	fact.UpdatedAt = now
	fact.IsCurrent = true
	if fact.RelationFamily == "" {
		fact.RelationFamily = types.NormalizeEntity(fact.Relation)
	}
	if fact.EvidenceCount < 1 {
		fact.EvidenceCount = 1
	}

	err := s.execInsertFact(ctx, s.db, fact)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: claim key %s", storage.ErrVersionConflict, fact.ClaimKey())
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to insert fact: %w", err)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execInsertFact(ctx context.Context, db execer, fact *types.Fact) error {
	query := `
		INSERT INTO facts (
			id, record_id, subject, subject_norm, relation, relation_family,
			object, fact_text, confidence, document_date, event_date,
			temporal_expression, embedding, embedding_model, is_current,
			supersedes_id, superseded_by_id, evidence_count, created_at, updated_at`
	args := []any{
		fact.ID, fact.RecordID, fact.Subject, types.NormalizeEntity(fact.Subject),
		fact.Relation, types.NormalizeEntity(fact.RelationFamily),
		fact.Object, fact.FactText, fact.Confidence,
		fact.DocumentDate, nullTime(fact.EventDate),
		fact.TemporalExpression, encodeEmbedding(fact.Embedding), fact.EmbeddingModel,
		fact.IsCurrent, fact.SupersedesID, fact.SupersededByID, fact.EvidenceCount,
		fact.CreatedAt, fact.UpdatedAt,
	}

	// Dual-write the typed vector column when pgvector is present so the
	// cosine index stays in sync with the portable BYTEA copy.
	if s.pgvectorAvailable && len(fact.Embedding) > 0 {
		query += ", embedding_vec"
		args = append(args, pgvector.NewVector(fact.Embedding))
	}

	query += ") VALUES ("
	for i := range args {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("$%d", i+1)
	}
	query += ")"

	_, err := db.ExecContext(ctx, query, args...)
	return err
}

// GetFact retrieves a fact by ID regardless of currency.
func (s *Store) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: fact ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+factColumns+" FROM facts WHERE id = $1", id)
	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get fact: %w", err)
	}
	return fact, nil
}

// GetCurrentFact returns the current fact for a claim key.
func (s *Store) GetCurrentFact(ctx context.Context, subject, relationFamily string) (*types.Fact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+factColumns+" FROM facts WHERE subject_norm = $1 AND relation_family = $2 AND is_current",
		types.NormalizeEntity(subject), types.NormalizeEntity(relationFamily))
	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get current fact: %w", err)
	}
	return fact, nil
}

// CurrentFacts returns all current facts matching the filter, newest
// document date first for deterministic iteration.
func (s *Store) CurrentFacts(ctx context.Context, filter storage.FactFilter) ([]types.Fact, error) {
	filter.Normalize()

	query := "SELECT " + factColumns + " FROM facts WHERE is_current"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Subject != "" {
		query += " AND subject_norm = " + arg(types.NormalizeEntity(filter.Subject))
	}
	if filter.RelationFamily != "" {
		query += " AND relation_family = " + arg(types.NormalizeEntity(filter.RelationFamily))
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= " + arg(filter.MinConfidence)
	}
	query += " ORDER BY document_date DESC, id ASC LIMIT " + arg(filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list current facts: %w", err)
	}
	defer rows.Close()

	var facts []types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

// CurrentRelations returns the distinct relation strings stored for a
// subject across its current facts.
func (s *Store) CurrentRelations(ctx context.Context, subject string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT relation FROM facts WHERE subject_norm = $1 AND is_current ORDER BY relation",
		types.NormalizeEntity(subject))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list relations: %w", err)
	}
	defer rows.Close()

	var relations []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

// SupersedeFact atomically retires currentID and installs newFact as the new
// current version. The flip uses an optimistic compare-and-set on the
// is_current flag: if another writer already retired the row, zero rows
// update and the whole transaction rolls back with ErrVersionConflict.
func (s *Store) SupersedeFact(ctx context.Context, currentID string, newFact *types.Fact) error {
	if currentID == "" || newFact == nil {
		return storage.ErrInvalidInput
	}
	if err := newFact.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin supersede: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE facts SET is_current = FALSE, superseded_by_id = $1, updated_at = $2
		WHERE id = $3 AND is_current`,
		newFact.ID, now, currentID)
	if err != nil {
		return fmt.Errorf("postgres: failed to retire fact %s: %w", currentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: fact %s is no longer current", storage.ErrVersionConflict, currentID)
	}

	newFact.IsCurrent = true
	newFact.SupersedesID = currentID
	if newFact.CreatedAt.IsZero() {
		newFact.CreatedAt = now
	}
	newFact.UpdatedAt = now
	if newFact.RelationFamily == "" {
		newFact.RelationFamily = types.NormalizeEntity(newFact.Relation)
	}
	if newFact.EvidenceCount < 1 {
		newFact.EvidenceCount = 1
	}

	if err := s.execInsertFact(ctx, tx, newFact); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: claim key %s", storage.ErrVersionConflict, newFact.ClaimKey())
		}
		return fmt.Errorf("postgres: failed to insert superseding fact: %w", err)
	}

	return tx.Commit()
}

// BumpEvidence increments a fact's evidence count and raises its confidence
// to at least the given value.
func (s *Store) BumpEvidence(ctx context.Context, id string, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE facts
		SET evidence_count = evidence_count + 1,
		    confidence = GREATEST(confidence, $1),
		    updated_at = NOW()
		WHERE id = $2`,
		confidence, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to bump evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FactHistory walks the supersede chain containing the given fact and
// returns all versions ordered oldest to newest. The walk is capped at
// maxChainLength in each direction; exceeding the cap means the chain is
// corrupt (a cycle) and an error is returned rather than looping.
func (s *Store) FactHistory(ctx context.Context, id string) ([]types.Fact, error) {
	start, err := s.GetFact(ctx, id)
	if err != nil {
		return nil, err
	}

	// Walk backward to the oldest version.
	oldest := start
	seen := map[string]bool{start.ID: true}
	for i := 0; oldest.SupersedesID != ""; i++ {
		if i >= maxChainLength {
			return nil, fmt.Errorf("postgres: supersede chain for %s exceeds %d versions", id, maxChainLength)
		}
		prev, err := s.GetFact(ctx, oldest.SupersedesID)
		if err != nil {
			return nil, fmt.Errorf("postgres: broken supersede chain at %s: %w", oldest.SupersedesID, err)
		}
		if seen[prev.ID] {
			return nil, fmt.Errorf("postgres: supersede cycle detected at %s", prev.ID)
		}
		seen[prev.ID] = true
		oldest = prev
	}

	// Walk forward from the oldest to the current version.
	chain := []types.Fact{*oldest}
	visited := map[string]bool{oldest.ID: true}
	cur := oldest
	for i := 0; cur.SupersededByID != ""; i++ {
		if i >= maxChainLength {
			return nil, fmt.Errorf("postgres: supersede chain for %s exceeds %d versions", id, maxChainLength)
		}
		next, err := s.GetFact(ctx, cur.SupersededByID)
		if err != nil {
			return nil, fmt.Errorf("postgres: broken supersede chain at %s: %w", cur.SupersededByID, err)
		}
		if visited[next.ID] {
			return nil, fmt.Errorf("postgres: supersede cycle detected at %s", next.ID)
		}
		visited[next.ID] = true
		chain = append(chain, *next)
		cur = next
	}
	return chain, nil
}

// NearestFacts returns the current facts closest to the query vector by
// cosine distance, using the pgvector index. Callers should check
// VectorSearchAvailable first; without the extension this returns an error.
func (s *Store) NearestFacts(ctx context.Context, query []float32, limit int) ([]types.Fact, error) {
	if !s.pgvectorAvailable {
		return nil, fmt.Errorf("postgres: pgvector extension is not available")
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+factColumns+`
		FROM facts
		WHERE is_current AND embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1, id ASC
		LIMIT $2`,
		pgvector.NewVector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search failed: %w", err)
	}
	defer rows.Close()

	var facts []types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

func scanFact(row rowScanner) (*types.Fact, error) {
	var (
		fact      types.Fact
		eventDate sql.NullTime
		embedding []byte
	)

	err := row.Scan(&fact.ID, &fact.RecordID, &fact.Subject, &fact.Relation,
		&fact.RelationFamily, &fact.Object, &fact.FactText, &fact.Confidence,
		&fact.DocumentDate, &eventDate, &fact.TemporalExpression, &embedding,
		&fact.EmbeddingModel, &fact.IsCurrent, &fact.SupersedesID,
		&fact.SupersededByID, &fact.EvidenceCount, &fact.CreatedAt, &fact.UpdatedAt)
	if err != nil {
		return nil, err
	}

	fact.Embedding = decodeEmbedding(embedding)
	fact.EventDate = timePtr(eventDate)
	return &fact, nil
}
