package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// StoreRecord inserts a new episodic record. Content is immutable after
// ingestion, so an existing ID is rejected rather than overwritten.
func (s *Store) StoreRecord(ctx context.Context, rec *types.EpisodicRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if rec.Content == "" {
		return fmt.Errorf("%w: record content is required", storage.ErrInvalidInput)
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}

	var contextJSON any
	if rec.Context != nil {
		data, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("sqlite: failed to serialize encoding context: %w", err)
		}
		contextJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (
			id, content, source, timestamp, created_at, updated_at,
			embedding, embedding_model, embedding_dimension,
			context_json, access_count, last_accessed_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		rec.ID, rec.Content, string(rec.Source),
		fmtTime(rec.Timestamp), fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt),
		encodeEmbedding(rec.Embedding), rec.EmbeddingModel, rec.EmbeddingDimension,
		contextJSON, rec.AccessCount, fmtTimePtr(rec.LastAccessedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: record %s already exists", storage.ErrInvalidInput, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to store record: %w", err)
	}
	return nil
}

const recordColumns = `id, content, source, timestamp, created_at, updated_at,
	embedding, embedding_model, embedding_dimension, context_json,
	access_count, last_accessed_at, deleted_at`

// GetRecord retrieves a record by ID. Soft-deleted records are not returned.
func (s *Store) GetRecord(ctx context.Context, id string) (*types.EpisodicRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ? AND deleted_at IS NULL", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record: %w", err)
	}
	return rec, nil
}

// ListRecords retrieves records with pagination, newest first.
func (s *Store) ListRecords(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.EpisodicRecord], error) {
	opts.Normalize()

	where := "WHERE 1=1"
	args := []any{}
	if !opts.IncludeDeleted {
		where += " AND deleted_at IS NULL"
	}
	if !opts.CreatedAfter.IsZero() {
		where += " AND created_at > ?"
		args = append(args, fmtTime(opts.CreatedAfter))
	}
	if !opts.CreatedBefore.IsZero() {
		where += " AND created_at < ?"
		args = append(args, fmtTime(opts.CreatedBefore))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count records: %w", err)
	}

	query := "SELECT " + recordColumns + " FROM records " + where +
		" ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list records: %w", err)
	}
	defer rows.Close()

	var items []types.EpisodicRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record: %w", err)
		}
		items = append(items, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: record iteration failed: %w", err)
	}

	return &storage.PaginatedResult[types.EpisodicRecord]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// DeleteRecord soft-deletes a record.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL",
		fmtTime(time.Now()), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete record: %w", err)
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

// IncrementAccess atomically bumps access bookkeeping for a record.
func (s *Store) IncrementAccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET access_count = access_count + 1, last_accessed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		fmtTime(time.Now()), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment access: %w", err)
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

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.EpisodicRecord, error) {
	var (
		rec           types.EpisodicRecord
		source        string
		ts, created   string
		updated       string
		embedding     []byte
		contextJSON   sql.NullString
		lastAccessed  sql.NullString
		deletedAt     sql.NullString
	)

	err := row.Scan(&rec.ID, &rec.Content, &source, &ts, &created, &updated,
		&embedding, &rec.EmbeddingModel, &rec.EmbeddingDimension, &contextJSON,
		&rec.AccessCount, &lastAccessed, &deletedAt)
	if err != nil {
		return nil, err
	}

	rec.Source = types.RecordSource(source)
	if rec.Timestamp, err = parseTime(ts); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	rec.Embedding = decodeEmbedding(embedding)

	if contextJSON.Valid && contextJSON.String != "" {
		var ec types.EncodingContext
		if err := json.Unmarshal([]byte(contextJSON.String), &ec); err != nil {
			return nil, fmt.Errorf("corrupt encoding context for %s: %w", rec.ID, err)
		}
		rec.Context = &ec
	}
	if rec.LastAccessedAt, err = parseTimePtr(lastAccessed); err != nil {
		return nil, err
	}
	if rec.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
