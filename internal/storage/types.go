package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleFact indicates a candidate fact carried an older document date
	// than the current version for its claim key. Older information never
	// supersedes newer; the candidate is rejected without mutation.
	ErrStaleFact = errors.New("candidate fact is older than current version")

	// ErrVersionConflict indicates a concurrent writer won the compare-and-set
	// race on a claim key's current flag. The caller may retry.
	ErrVersionConflict = errors.New("version conflict on claim key")

	// ErrInvalidDecayState indicates corrupted scheduler state for a record
	// (e.g. negative stability). Fatal for that record only; the scheduler
	// resets it to New.
	ErrInvalidDecayState = errors.New("invalid decay state")
)

// PaginatedResult represents a paginated result set.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 1000).
	Limit int

	// CreatedAfter filters to items created strictly after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time

	// CreatedBefore filters to items created strictly before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// IncludeDeleted includes soft-deleted records in results.
	IncludeDeleted bool
}

// Normalize applies defaults and bounds to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
}

// Offset calculates the SQL offset from page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// FactFilter narrows current-fact queries.
type FactFilter struct {
	// Subject restricts to facts whose subject matches (case-insensitive).
	// Empty means no subject filter.
	Subject string

	// RelationFamily restricts to a relation family. Empty means no filter.
	RelationFamily string

	// MinConfidence drops facts below this extraction confidence.
	MinConfidence float64

	// Limit caps the result count (default: 1000).
	Limit int
}

// Normalize applies defaults to the FactFilter.
func (f *FactFilter) Normalize() {
	if f.Limit < 1 {
		f.Limit = 1000
	}
}
