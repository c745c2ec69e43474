// Package storage provides composable storage interfaces for the Evermind
// memory core.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. Two backends exist:
// SQLite (the default, single-writer WAL setup) and Postgres (with pgvector
// acceleration for embedding search).
package storage

import (
	"context"
	"time"

	"github.com/evermind-ai/evermind/pkg/types"
)

// RecordStore provides CRUD operations for episodic records.
type RecordStore interface {
	// StoreRecord inserts a new episodic record. Record content is
	// immutable; storing an existing ID returns ErrInvalidInput.
	StoreRecord(ctx context.Context, rec *types.EpisodicRecord) error

	// GetRecord retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist or was soft-deleted.
	GetRecord(ctx context.Context, id string) (*types.EpisodicRecord, error)

	// ListRecords retrieves records with pagination, newest first.
	ListRecords(ctx context.Context, opts ListOptions) (*PaginatedResult[types.EpisodicRecord], error)

	// DeleteRecord soft-deletes a record (sets deleted_at).
	// Returns ErrNotFound if the record doesn't exist.
	DeleteRecord(ctx context.Context, id string) error

	// IncrementAccess atomically bumps access_count and last_accessed_at.
	// Returns ErrNotFound if the record doesn't exist.
	IncrementAccess(ctx context.Context, id string) error
}

// FactStore provides versioned storage for atomic facts. The single-current-
// version-per-claim-key invariant is enforced here: the current flag flip and
// the new-version insert happen in one atomic operation, and a lost
// compare-and-set race surfaces as ErrVersionConflict.
type FactStore interface {
	// InsertFact inserts a fact as the current version for its claim key.
	// The caller guarantees no current version exists; a uniqueness
	// violation on the claim key surfaces as ErrVersionConflict.
	InsertFact(ctx context.Context, fact *types.Fact) error

	// GetFact retrieves a fact by ID regardless of currency.
	GetFact(ctx context.Context, id string) (*types.Fact, error)

	// GetCurrentFact returns the current fact for a claim key, or
	// ErrNotFound when the key has no current version.
	GetCurrentFact(ctx context.Context, subject, relationFamily string) (*types.Fact, error)

	// CurrentFacts returns all current facts matching the filter.
	CurrentFacts(ctx context.Context, filter FactFilter) ([]types.Fact, error)

	// CurrentRelations returns the distinct relation strings stored for a
	// subject, used by the versioner's relation-family grouping.
	CurrentRelations(ctx context.Context, subject string) ([]string, error)

	// SupersedeFact atomically retires currentID and installs newFact as the
	// current version: it flips is_current off the old row, links the chain
	// pointers both ways, and inserts the new row, all in one transaction.
	// Returns ErrVersionConflict if currentID is no longer the current
	// version when the flip executes.
	SupersedeFact(ctx context.Context, currentID string, newFact *types.Fact) error

	// BumpEvidence increments a fact's evidence count and raises its
	// confidence to at least the given value. Used when a near-duplicate
	// restatement is observed instead of inserting a new row.
	BumpEvidence(ctx context.Context, id string, confidence float64) error

	// FactHistory walks the supersede chain containing the given fact and
	// returns all versions ordered oldest to newest. The walk is capped to
	// guard against chain corruption.
	FactHistory(ctx context.Context, id string) ([]types.Fact, error)
}

// RelationStore manages directed entity-relation edges with validity-window
// supersession: at most one current edge per (source, relation type) pair.
type RelationStore interface {
	// UpsertRelation installs the edge as current for its (source, relation
	// type) pair, closing the validity window of any previous current edge
	// in the same transaction.
	UpsertRelation(ctx context.Context, rel *types.EntityRelation) error

	// CurrentRelationsFrom returns the current edges leaving an entity.
	CurrentRelationsFrom(ctx context.Context, sourceEntity string) ([]types.EntityRelation, error)

	// RelationHistory returns all edges ever stored for a (source, relation
	// type) pair, ordered by validity window start.
	RelationHistory(ctx context.Context, sourceEntity, relationType string) ([]types.EntityRelation, error)
}

// SchedulerStore persists per-record decay state and the append-only review
// log consumed by the offline parameter trainer.
type SchedulerStore interface {
	// PutDecayState inserts or replaces the decay state for a record.
	PutDecayState(ctx context.Context, state *types.DecayState) error

	// GetDecayState retrieves the decay state for a record.
	// Returns ErrNotFound when the record has no state yet.
	GetDecayState(ctx context.Context, recordID string) (*types.DecayState, error)

	// AppendReview appends one immutable review event.
	AppendReview(ctx context.Context, event *types.ReviewEvent) error

	// ReviewHistory returns all review events for a record, oldest first.
	ReviewHistory(ctx context.Context, recordID string) ([]types.ReviewEvent, error)

	// DueRecords returns the IDs of records due for review at the given
	// instant: last_review + scheduled_interval has passed, or the record
	// has never been reviewed. Ordered most-overdue first, capped at limit.
	DueRecords(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Store composes every storage concern plus lifecycle management. Both
// backends implement it.
type Store interface {
	RecordStore
	FactStore
	RelationStore
	SchedulerStore

	// PurgeUserData hard-deletes every record, fact, relation, decay state,
	// and review event. This is the only path that physically deletes facts.
	PurgeUserData(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
