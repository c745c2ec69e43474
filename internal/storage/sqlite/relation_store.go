package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

const relationColumns = `id, source_entity, relation_type, target_entity,
	confidence, valid_from, valid_until, is_current, created_at`

// UpsertRelation installs the edge as current for its (source, relation
// type) pair. Any previous current edge has its validity window closed in
// the same transaction, preserving the one-current-edge-per-pair invariant.
func (s *Store) UpsertRelation(ctx context.Context, rel *types.EntityRelation) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	now := time.Now()
	if rel.ValidFrom.IsZero() {
		rel.ValidFrom = now
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.IsCurrent = true
	rel.ValidUntil = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin relation upsert: %w", err)
	}
	defer tx.Rollback()

	// Close the validity window of the previous current edge, if any.
	_, err = tx.ExecContext(ctx, `
		UPDATE entity_relations SET is_current = 0, valid_until = ?
		WHERE source_norm = ? AND relation_type = ? AND is_current = 1`,
		fmtTime(rel.ValidFrom), types.NormalizeEntity(rel.SourceEntity), rel.RelationType)
	if err != nil {
		return fmt.Errorf("sqlite: failed to close previous relation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_relations (
			id, source_entity, source_norm, relation_type, target_entity,
			confidence, valid_from, valid_until, is_current, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 1, ?)`,
		rel.ID, rel.SourceEntity, types.NormalizeEntity(rel.SourceEntity),
		rel.RelationType, rel.TargetEntity, rel.Confidence,
		fmtTime(rel.ValidFrom), fmtTime(rel.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: relation (%s, %s)", storage.ErrVersionConflict, rel.SourceEntity, rel.RelationType)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert relation: %w", err)
	}

	return tx.Commit()
}

// CurrentRelationsFrom returns the current edges leaving an entity.
func (s *Store) CurrentRelationsFrom(ctx context.Context, sourceEntity string) ([]types.EntityRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+relationColumns+` FROM entity_relations
		WHERE source_norm = ? AND is_current = 1 ORDER BY relation_type, id`,
		types.NormalizeEntity(sourceEntity))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

// RelationHistory returns all edges for a (source, relation type) pair,
// ordered by validity window start.
func (s *Store) RelationHistory(ctx context.Context, sourceEntity, relationType string) ([]types.EntityRelation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+relationColumns+` FROM entity_relations
		WHERE source_norm = ? AND relation_type = ? ORDER BY valid_from, created_at`,
		types.NormalizeEntity(sourceEntity), relationType)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load relation history: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func scanRelations(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]types.EntityRelation, error) {
	var out []types.EntityRelation
	for rows.Next() {
		var (
			rel        types.EntityRelation
			validFrom  string
			validUntil sql.NullString
			isCurrent  int
			created    string
		)
		if err := rows.Scan(&rel.ID, &rel.SourceEntity, &rel.RelationType,
			&rel.TargetEntity, &rel.Confidence, &validFrom, &validUntil,
			&isCurrent, &created); err != nil {
			return nil, err
		}
		rel.IsCurrent = isCurrent == 1
		var err error
		if rel.ValidFrom, err = parseTime(validFrom); err != nil {
			return nil, err
		}
		if rel.ValidUntil, err = parseTimePtr(validUntil); err != nil {
			return nil, err
		}
		if rel.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
