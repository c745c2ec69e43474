package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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
		return fmt.Errorf("sqlite: failed to insert fact: %w", err)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execInsertFact(ctx context.Context, db execer, fact *types.Fact) error {
	isCurrent := 0
	if fact.IsCurrent {
		isCurrent = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO facts (
			id, record_id, subject, subject_norm, relation, relation_family,
			object, fact_text, confidence, document_date, event_date,
			temporal_expression, embedding, embedding_model, is_current,
			supersedes_id, superseded_by_id, evidence_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fact.ID, fact.RecordID, fact.Subject, types.NormalizeEntity(fact.Subject),
		fact.Relation, types.NormalizeEntity(fact.RelationFamily),
		fact.Object, fact.FactText, fact.Confidence,
		fmtTime(fact.DocumentDate), fmtTimePtr(fact.EventDate),
		fact.TemporalExpression, encodeEmbedding(fact.Embedding), fact.EmbeddingModel,
		isCurrent, fact.SupersedesID, fact.SupersededByID, fact.EvidenceCount,
		fmtTime(fact.CreatedAt), fmtTime(fact.UpdatedAt),
	)
	return err
}

// GetFact retrieves a fact by ID regardless of currency.
func (s *Store) GetFact(ctx context.Context, id string) (*types.Fact, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: fact ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, "SELECT "+factColumns+" FROM facts WHERE id = ?", id)
	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get fact: %w", err)
	}
	return fact, nil
}

// GetCurrentFact returns the current fact for a claim key.
func (s *Store) GetCurrentFact(ctx context.Context, subject, relationFamily string) (*types.Fact, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+factColumns+" FROM facts WHERE subject_norm = ? AND relation_family = ? AND is_current = 1",
		types.NormalizeEntity(subject), types.NormalizeEntity(relationFamily))
	fact, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get current fact: %w", err)
	}
	return fact, nil
}

// CurrentFacts returns all current facts matching the filter, newest
// document date first for deterministic iteration.
func (s *Store) CurrentFacts(ctx context.Context, filter storage.FactFilter) ([]types.Fact, error) {
	filter.Normalize()

	query := "SELECT " + factColumns + " FROM facts WHERE is_current = 1"
	args := []any{}
	if filter.Subject != "" {
		query += " AND subject_norm = ?"
		args = append(args, types.NormalizeEntity(filter.Subject))
	}
	if filter.RelationFamily != "" {
		query += " AND relation_family = ?"
		args = append(args, types.NormalizeEntity(filter.RelationFamily))
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, filter.MinConfidence)
	}
	query += " ORDER BY document_date DESC, id ASC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list current facts: %w", err)
	}
	defer rows.Close()

	var facts []types.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

// CurrentRelations returns the distinct relation strings stored for a
// subject across its current facts.
func (s *Store) CurrentRelations(ctx context.Context, subject string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT relation FROM facts WHERE subject_norm = ? AND is_current = 1 ORDER BY relation",
		types.NormalizeEntity(subject))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list relations: %w", err)
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
		return fmt.Errorf("sqlite: failed to begin supersede: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE facts SET is_current = 0, superseded_by_id = ?, updated_at = ?
		WHERE id = ? AND is_current = 1`,
		newFact.ID, fmtTime(now), currentID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to retire fact %s: %w", currentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
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
		return fmt.Errorf("sqlite: failed to insert superseding fact: %w", err)
	}

	return tx.Commit()
}

// BumpEvidence increments a fact's evidence count and raises its confidence
// to at least the given value.
func (s *Store) BumpEvidence(ctx context.Context, id string, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE facts
		SET evidence_count = evidence_count + 1,
		    confidence = MAX(confidence, ?),
		    updated_at = ?
		WHERE id = ?`,
		confidence, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to bump evidence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
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
			return nil, fmt.Errorf("sqlite: supersede chain for %s exceeds %d versions", id, maxChainLength)
		}
		prev, err := s.GetFact(ctx, oldest.SupersedesID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: broken supersede chain at %s: %w", oldest.SupersedesID, err)
		}
		if seen[prev.ID] {
			return nil, fmt.Errorf("sqlite: supersede cycle detected at %s", prev.ID)
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
			return nil, fmt.Errorf("sqlite: supersede chain for %s exceeds %d versions", id, maxChainLength)
		}
		next, err := s.GetFact(ctx, cur.SupersededByID)
		if err != nil {
			return nil, fmt.Errorf("sqlite: broken supersede chain at %s: %w", cur.SupersededByID, err)
		}
		if visited[next.ID] {
			return nil, fmt.Errorf("sqlite: supersede cycle detected at %s", next.ID)
		}
		visited[next.ID] = true
		chain = append(chain, *next)
		cur = next
	}
	return chain, nil
}

func scanFact(row rowScanner) (*types.Fact, error) {
	var (
		fact      types.Fact
		docDate   string
		eventDate sql.NullString
		embedding []byte
		isCurrent int
		created   string
		updated   string
	)

	err := row.Scan(&fact.ID, &fact.RecordID, &fact.Subject, &fact.Relation,
		&fact.RelationFamily, &fact.Object, &fact.FactText, &fact.Confidence,
		&docDate, &eventDate, &fact.TemporalExpression, &embedding,
		&fact.EmbeddingModel, &isCurrent, &fact.SupersedesID,
		&fact.SupersededByID, &fact.EvidenceCount, &created, &updated)
	if err != nil {
		return nil, err
	}

	fact.IsCurrent = isCurrent == 1
	fact.Embedding = decodeEmbedding(embedding)
	if fact.DocumentDate, err = parseTime(docDate); err != nil {
		return nil, err
	}
	if fact.EventDate, err = parseTimePtr(eventDate); err != nil {
		return nil, err
	}
	if fact.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if fact.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &fact, nil
}
