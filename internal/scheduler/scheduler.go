package scheduler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evermind-ai/evermind/internal/config"
	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// lockStripes bounds the per-record mutex table. Reviews for the same
// record serialize on the same stripe; reviews for different records almost
// always proceed in parallel.
const lockStripes = 64

// Scheduler owns the decay state of every record. Review application is
// serialized per record; everything else is a plain read.
type Scheduler struct {
	store  storage.SchedulerStore
	params func() config.SchedulerConfig
	locks  [lockStripes]sync.Mutex
}

// New creates a scheduler. params is re-read on every operation so that a
// hot-reloaded parameter vector takes effect without restarting; a nil
// params falls back to the built-in defaults.
func New(store storage.SchedulerStore, params func() config.SchedulerConfig) *Scheduler {
	if params == nil {
		def := config.Default().Scheduler
		params = func() config.SchedulerConfig { return def }
	}
	return &Scheduler{store: store, params: params}
}

// InitState creates the New-state decay state for a freshly ingested
// record: seed stability from configuration, difficulty at the scale
// midpoint.
func (s *Scheduler) InitState(ctx context.Context, recordID string) (*types.DecayState, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	cfg := s.params()

	state := &types.DecayState{
		RecordID:   recordID,
		Stability:  cfg.InitialStability,
		Difficulty: (minDifficulty + maxDifficulty) / 2,
		State:      types.StateNew,
	}
	if err := s.store.PutDecayState(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// ApplyReview applies one rating to a record at the given instant. Calls
// for the same record are serialized; each call appends exactly one
// immutable ReviewEvent alongside the mutated decay state.
//
// A corrupted stored state (the InvalidDecayState condition) is not fatal:
// the record is reset to New, the reset is logged, and the review proceeds
// on the fresh state.
func (s *Scheduler) ApplyReview(ctx context.Context, recordID string, rating types.Rating, now time.Time) (*types.DecayState, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if !rating.Valid() {
		return nil, fmt.Errorf("%w: rating %d outside [1,4]", storage.ErrInvalidInput, int(rating))
	}

	lock := &s.locks[stripe(recordID)]
	lock.Lock()
	defer lock.Unlock()

	cfg := s.params()
	curve := NewFSRS(cfg.Parameters)

	state, err := s.loadOrReset(ctx, recordID, cfg)
	if err != nil {
		return nil, err
	}

	elapsed := 0.0
	if state.LastReview != nil {
		elapsed = now.Sub(*state.LastReview).Hours() / 24
		if elapsed < 0 {
			elapsed = 0
		}
	}

	retrievability := 1.0
	if state.State != types.StateNew {
		retrievability = curve.Retrievability(elapsed, state.Stability)
	}

	before := *state
	next := *state
	next.Reps++

	switch {
	case state.State == types.StateNew:
		next.Stability = curve.InitialStability(rating)
		next.Difficulty = curve.InitialDifficulty(rating)
		switch rating {
		case types.RatingAgain:
			next.Lapses++
			next.State = types.StateRelearning
		case types.RatingHard:
			next.State = types.StateLearning
		default:
			next.State = types.StateReview
		}

	case rating == types.RatingAgain:
		next.Lapses++
		next.Difficulty = curve.NextDifficulty(state.Difficulty, rating)
		next.Stability = curve.NextForgetStability(state.Difficulty, state.Stability, retrievability)
		next.State = types.StateRelearning

	case state.State == types.StateLearning || state.State == types.StateRelearning:
		next.Difficulty = curve.NextDifficulty(state.Difficulty, rating)
		next.Stability = curve.NextShortTermStability(state.Stability, rating)
		next.State = types.StateReview

	default: // Review-state recall
		next.Difficulty = curve.NextDifficulty(state.Difficulty, rating)
		next.Stability = curve.NextRecallStability(state.Difficulty, state.Stability, retrievability, rating)
		next.State = types.StateReview
	}

	next.ScheduledInterval = clampInterval(
		curve.Interval(next.Stability, cfg.Parameters.TargetRetention),
		cfg.Parameters.MaxIntervalDays)
	reviewedAt := now
	next.LastReview = &reviewedAt

	if err := s.store.PutDecayState(ctx, &next); err != nil {
		return nil, fmt.Errorf("scheduler: failed to persist decay state: %w", err)
	}

	event := &types.ReviewEvent{
		ID:               "rev:" + uuid.NewString(),
		RecordID:         recordID,
		Rating:           rating,
		StateBefore:      before.State,
		ScheduledDays:    before.ScheduledInterval,
		ElapsedDays:      elapsed,
		StabilityBefore:  before.Stability,
		StabilityAfter:   next.Stability,
		DifficultyBefore: before.Difficulty,
		DifficultyAfter:  next.Difficulty,
		Retrievability:   retrievability,
		Timestamp:        now,
	}
	if err := s.store.AppendReview(ctx, event); err != nil {
		return nil, fmt.Errorf("scheduler: failed to append review event: %w", err)
	}

	return &next, nil
}

// Retrievability reports the current recall probability estimate for a
// record. New and unseen records score 1.
func (s *Scheduler) Retrievability(ctx context.Context, recordID string, now time.Time) (float64, error) {
	state, err := s.store.GetDecayState(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if state.LastReview == nil {
		return 1, nil
	}
	elapsed := now.Sub(*state.LastReview).Hours() / 24
	curve := NewFSRS(s.params().Parameters)
	return curve.Retrievability(elapsed, state.Stability), nil
}

// Due returns the record IDs due for review, most overdue first.
func (s *Scheduler) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.store.DueRecords(ctx, now, limit)
}

// History returns the immutable review log for a record, oldest first.
func (s *Scheduler) History(ctx context.Context, recordID string) ([]types.ReviewEvent, error) {
	return s.store.ReviewHistory(ctx, recordID)
}

// loadOrReset fetches the decay state, creating it for unseen records and
// resetting it to New when the stored state fails validation.
func (s *Scheduler) loadOrReset(ctx context.Context, recordID string, cfg config.SchedulerConfig) (*types.DecayState, error) {
	state, err := s.store.GetDecayState(ctx, recordID)
	if errors.Is(err, storage.ErrNotFound) {
		return &types.DecayState{
			RecordID:   recordID,
			Stability:  cfg.InitialStability,
			Difficulty: (minDifficulty + maxDifficulty) / 2,
			State:      types.StateNew,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to load decay state: %w", err)
	}
	if verr := state.Validate(); verr != nil {
		log.Printf("scheduler: resetting corrupt decay state for %s: %v", recordID, verr)
		return &types.DecayState{
			RecordID:   recordID,
			Stability:  cfg.InitialStability,
			Difficulty: (minDifficulty + maxDifficulty) / 2,
			State:      types.StateNew,
		}, nil
	}
	return state, nil
}

func clampInterval(days, maxDays float64) float64 {
	if math.IsNaN(days) || days < 1 {
		return 1
	}
	if maxDays >= 1 && days > maxDays {
		return maxDays
	}
	return days
}

func stripe(recordID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(recordID))
	return h.Sum32() % lockStripes
}
