package types

import (
	"fmt"
	"time"
)

// MemoryState is the spaced-repetition state of a record.
type MemoryState string

const (
	StateNew        MemoryState = "new"
	StateLearning   MemoryState = "learning"
	StateReview     MemoryState = "review"
	StateRelearning MemoryState = "relearning"
)

// ValidMemoryStates enumerates the accepted scheduler states.
var ValidMemoryStates = []MemoryState{StateNew, StateLearning, StateReview, StateRelearning}

// Rating is the user's self-assessed recall quality for a review.
type Rating int

const (
	RatingAgain Rating = 1
	RatingHard  Rating = 2
	RatingGood  Rating = 3
	RatingEasy  Rating = 4
)

// String returns the lowercase rating name.
func (r Rating) String() string {
	switch r {
	case RatingAgain:
		return "again"
	case RatingHard:
		return "hard"
	case RatingGood:
		return "good"
	case RatingEasy:
		return "easy"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

// Valid reports whether the rating is one of the four defined values.
func (r Rating) Valid() bool {
	return r >= RatingAgain && r <= RatingEasy
}

// DecayState is the scheduler-owned forgetting-curve state, one per
// episodic record. Mutated only by the scheduler's review application.
type DecayState struct {
	RecordID string `json:"record_id"`

	Stability  float64     `json:"stability"`  // Days for retrievability to decay to target retention; > 0
	Difficulty float64     `json:"difficulty"` // In [1,10]; higher is harder
	State      MemoryState `json:"state"`
	Reps       int         `json:"reps"`
	Lapses     int         `json:"lapses"`

	LastReview        *time.Time `json:"last_review,omitempty"`
	ScheduledInterval float64    `json:"scheduled_interval_days,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports corruption in the decay state. A failed check maps to
// the InvalidDecayState condition: the record's state is reset to New.
func (d *DecayState) Validate() error {
	if d.Stability <= 0 {
		return fmt.Errorf("decay state %s: non-positive stability %.4f", d.RecordID, d.Stability)
	}
	if d.Difficulty < 1 || d.Difficulty > 10 {
		return fmt.Errorf("decay state %s: difficulty %.4f outside [1,10]", d.RecordID, d.Difficulty)
	}
	switch d.State {
	case StateNew, StateLearning, StateReview, StateRelearning:
	default:
		return fmt.Errorf("decay state %s: unknown state %q", d.RecordID, d.State)
	}
	if d.Reps < 0 || d.Lapses < 0 {
		return fmt.Errorf("decay state %s: negative counters", d.RecordID)
	}
	return nil
}

// ReviewEvent is an immutable, append-only record of a single review.
// The offline parameter trainer consumes these; nothing in this system
// ever mutates one after creation.
type ReviewEvent struct {
	ID       string `json:"id"`
	RecordID string `json:"record_id"`

	Rating      Rating      `json:"rating"`
	StateBefore MemoryState `json:"state_before"`

	ScheduledDays float64 `json:"scheduled_days"`
	ElapsedDays   float64 `json:"elapsed_days"`

	StabilityBefore  float64 `json:"stability_before"`
	StabilityAfter   float64 `json:"stability_after"`
	DifficultyBefore float64 `json:"difficulty_before"`
	DifficultyAfter  float64 `json:"difficulty_after"`

	Retrievability float64 `json:"retrievability_at_review"`

	Timestamp time.Time `json:"timestamp"`
}

// ParameterVectorSize is the number of scalar weights in a parameter vector.
const ParameterVectorSize = 21

// ParameterVector holds the per-user forgetting-curve weights plus the
// retention target and interval cap. The default vector is the published
// baseline; an external optimizer may overwrite it from review history.
type ParameterVector struct {
	Weights         [ParameterVectorSize]float64 `json:"weights" yaml:"weights,flow"`
	TargetRetention float64                      `json:"target_retention" yaml:"target_retention"`
	MaxIntervalDays float64                      `json:"max_interval_days" yaml:"max_interval_days"`
}

// DefaultParameters returns the published baseline parameter vector.
func DefaultParameters() ParameterVector {
	return ParameterVector{
		Weights: [ParameterVectorSize]float64{
			0.2172, 1.1771, 3.2602, 16.1507, // initial stability per rating
			7.0114, 0.57, // initial difficulty
			2.0966, 0.0069, // difficulty step + mean reversion
			1.5261, 0.112, 1.0178, // long-term stabilization
			1.849, 0.1133, 0.3127, 2.2934, // post-lapse stability
			0.2191, 3.0004, // hard penalty, easy bonus
			0.7536, 0.3332, // short-term (learning-state) adjustment
			0.1437, // reserved for trained same-day factor
			0.2,    // forgetting-curve decay exponent
		},
		TargetRetention: 0.9,
		MaxIntervalDays: 365,
	}
}

// Validate checks the parameter vector is usable by the scheduler.
func (p *ParameterVector) Validate() error {
	if p.TargetRetention <= 0 || p.TargetRetention >= 1 {
		return fmt.Errorf("target retention %.3f outside (0,1)", p.TargetRetention)
	}
	if p.MaxIntervalDays < 1 {
		return fmt.Errorf("max interval %.1f days must be >= 1", p.MaxIntervalDays)
	}
	for i, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight w%d is negative (%.4f)", i, w)
		}
	}
	if p.Weights[20] <= 0 {
		return fmt.Errorf("decay exponent w20 must be positive")
	}
	return nil
}
