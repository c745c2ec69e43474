// Package sqlite implements the storage interfaces on SQLite using the pure
// Go modernc.org/sqlite driver. A single writer connection in WAL mode
// serialises all mutations, which is what makes the current-flag flip plus
// new-version insert a single atomic step for readers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/evermind-ai/evermind/internal/storage"
)

// timeLayout is the canonical storage format for timestamps. Stored in UTC
// at second precision so SQLite's julianday() can consume the values in the
// due-records query.
const timeLayout = "2006-01-02 15:04:05"

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given DSN, configures WAL
// mode, and applies the schema. Use ":memory:" for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open
	// connection serialises writes and avoids SQLITE_BUSY errors under
	// concurrent load. WAL mode lets readers proceed without blocking the
	// writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PurgeUserData hard-deletes all user data: records, facts, relations,
// decay states, and review events. This is the only path that physically
// deletes fact rows.
func (s *Store) PurgeUserData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin purge: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"review_events", "decay_states", "entity_relations", "facts", "records"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("sqlite: failed to purge %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// --- shared helpers ---

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeEmbedding serialises a vector as little-endian float32 bytes.
// Returns nil for an empty vector so the column stores NULL.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding deserialises little-endian float32 bytes.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The partial unique indexes turn a lost current-flag race into
// this error, which the store maps to storage.ErrVersionConflict.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ storage.Store = (*Store)(nil)
