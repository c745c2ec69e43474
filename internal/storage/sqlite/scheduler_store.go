package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// PutDecayState inserts or replaces the decay state for a record.
func (s *Store) PutDecayState(ctx context.Context, state *types.DecayState) error {
	if state == nil || state.RecordID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidDecayState, err)
	}

	state.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decay_states (
			record_id, stability, difficulty, state, reps, lapses,
			last_review, scheduled_interval_days, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			state = excluded.state,
			reps = excluded.reps,
			lapses = excluded.lapses,
			last_review = excluded.last_review,
			scheduled_interval_days = excluded.scheduled_interval_days,
			updated_at = excluded.updated_at`,
		state.RecordID, state.Stability, state.Difficulty, string(state.State),
		state.Reps, state.Lapses, fmtTimePtr(state.LastReview),
		state.ScheduledInterval, fmtTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: failed to store decay state: %w", err)
	}
	return nil
}

// GetDecayState retrieves the decay state for a record.
func (s *Store) GetDecayState(ctx context.Context, recordID string) (*types.DecayState, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}

	var (
		state      types.DecayState
		stateName  string
		lastReview sql.NullString
		updated    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, stability, difficulty, state, reps, lapses,
		       last_review, scheduled_interval_days, updated_at
		FROM decay_states WHERE record_id = ?`, recordID).
		Scan(&state.RecordID, &state.Stability, &state.Difficulty, &stateName,
			&state.Reps, &state.Lapses, &lastReview, &state.ScheduledInterval, &updated)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get decay state: %w", err)
	}

	state.State = types.MemoryState(stateName)
	if state.LastReview, err = parseTimePtr(lastReview); err != nil {
		return nil, err
	}
	if state.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &state, nil
}

// AppendReview appends one immutable review event. Events are never updated
// or deleted; the offline parameter trainer consumes this log as-is.
func (s *Store) AppendReview(ctx context.Context, event *types.ReviewEvent) error {
	if event == nil || event.ID == "" || event.RecordID == "" {
		return fmt.Errorf("%w: review event ID and record ID are required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_events (
			id, record_id, rating, state_before, scheduled_days, elapsed_days,
			stability_before, stability_after, difficulty_before,
			difficulty_after, retrievability, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RecordID, int(event.Rating), string(event.StateBefore),
		event.ScheduledDays, event.ElapsedDays, event.StabilityBefore,
		event.StabilityAfter, event.DifficultyBefore, event.DifficultyAfter,
		event.Retrievability, fmtTime(event.Timestamp))
	if err != nil {
		return fmt.Errorf("sqlite: failed to append review event: %w", err)
	}
	return nil
}

// ReviewHistory returns all review events for a record, oldest first.
func (s *Store) ReviewHistory(ctx context.Context, recordID string) ([]types.ReviewEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, rating, state_before, scheduled_days, elapsed_days,
		       stability_before, stability_after, difficulty_before,
		       difficulty_after, retrievability, timestamp
		FROM review_events WHERE record_id = ? ORDER BY timestamp, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load review history: %w", err)
	}
	defer rows.Close()

	var events []types.ReviewEvent
	for rows.Next() {
		var (
			ev     types.ReviewEvent
			rating int
			before string
			ts     string
		)
		if err := rows.Scan(&ev.ID, &ev.RecordID, &rating, &before,
			&ev.ScheduledDays, &ev.ElapsedDays, &ev.StabilityBefore,
			&ev.StabilityAfter, &ev.DifficultyBefore, &ev.DifficultyAfter,
			&ev.Retrievability, &ts); err != nil {
			return nil, err
		}
		ev.Rating = types.Rating(rating)
		ev.StateBefore = types.MemoryState(before)
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DueRecords returns records due for review at the given instant, most
// overdue first. Never-reviewed records sort ahead of everything else.
func (s *Store) DueRecords(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit < 1 {
		limit = 100
	}

	nowStr := fmtTime(now)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ds.record_id
		FROM decay_states ds
		JOIN records r ON r.id = ds.record_id AND r.deleted_at IS NULL
		WHERE ds.last_review IS NULL
		   OR julianday(?) - julianday(ds.last_review) >= ds.scheduled_interval_days
		ORDER BY
			CASE WHEN ds.last_review IS NULL THEN 1 ELSE 0 END DESC,
			julianday(?) - julianday(COALESCE(ds.last_review, ?)) - ds.scheduled_interval_days DESC,
			ds.record_id ASC
		LIMIT ?`,
		nowStr, nowStr, nowStr, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query due records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
