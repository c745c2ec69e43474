// Package scheduler implements the spaced-repetition lifecycle for episodic
// records: a forgetting-curve model over (stability, difficulty), a
// four-state review machine, and per-record serialized review application
// with an immutable event log.
package scheduler

import (
	"math"

	"github.com/evermind-ai/evermind/pkg/types"
)

// Curve is the pluggable forgetting-curve strategy. Implementations must be
// monotone: retrievability strictly decreasing in elapsed time and strictly
// increasing in stability; stability gains increasing in rating and
// decreasing in difficulty.
type Curve interface {
	// Retrievability estimates recall probability after elapsedDays given
	// the current stability.
	Retrievability(elapsedDays, stability float64) float64

	// Interval inverts the retrievability formula: the elapsed time at
	// which retrievability decays to the requested retention.
	Interval(stability, retention float64) float64

	// InitialStability seeds stability from the first rating.
	InitialStability(rating types.Rating) float64

	// InitialDifficulty seeds difficulty from the first rating.
	InitialDifficulty(rating types.Rating) float64

	// NextRecallStability grows stability after a successful Review-state
	// recall at retrievability r.
	NextRecallStability(difficulty, stability, r float64, rating types.Rating) float64

	// NextForgetStability shrinks stability after a lapse at
	// retrievability r.
	NextForgetStability(difficulty, stability, r float64) float64

	// NextShortTermStability adjusts stability for reviews in the
	// Learning and Relearning states, where the long-term formula does
	// not yet apply.
	NextShortTermStability(stability float64, rating types.Rating) float64

	// NextDifficulty steps difficulty toward easier or harder.
	NextDifficulty(difficulty float64, rating types.Rating) float64
}

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// FSRS is the default Curve: a power-law forgetting model parameterized by
// the 21-weight vector. The decay exponent is -w20; the scale factor is
// chosen so that retrievability equals 0.9 exactly when elapsed time equals
// stability, which makes stability directly interpretable as "days until
// recall probability drops to 90%".
type FSRS struct {
	w      [types.ParameterVectorSize]float64
	decay  float64
	factor float64
}

// NewFSRS builds the curve from a parameter vector.
func NewFSRS(params types.ParameterVector) *FSRS {
	decay := -params.Weights[20]
	return &FSRS{
		w:      params.Weights,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}
}

// Retrievability computes R(t, s) = (1 + factor·t/s)^decay.
func (f *FSRS) Retrievability(elapsedDays, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	if elapsedDays <= 0 {
		return 1
	}
	return math.Pow(1+f.factor*elapsedDays/stability, f.decay)
}

// Interval inverts Retrievability for the requested retention.
func (f *FSRS) Interval(stability, retention float64) float64 {
	if retention <= 0 || retention >= 1 {
		return stability
	}
	return stability / f.factor * (math.Pow(retention, 1/f.decay) - 1)
}

// InitialStability is w0..w3 indexed by rating.
func (f *FSRS) InitialStability(rating types.Rating) float64 {
	s := f.w[int(rating)-1]
	return math.Max(s, minStability)
}

// InitialDifficulty is D0(g) = w4 − e^(w5·(g−1)) + 1, clamped to [1, 10].
// Again yields the hardest start, Easy the easiest.
func (f *FSRS) InitialDifficulty(rating types.Rating) float64 {
	d := f.w[4] - math.Exp(f.w[5]*float64(int(rating)-1)) + 1
	return clampDifficulty(d)
}

// NextRecallStability grows stability after a successful recall. The gain
// shrinks as difficulty rises, as stability accumulates, and as
// retrievability approaches 1 (reviewing early teaches little); Hard
// reviews are penalized by w15 and Easy reviews boosted by w16.
func (f *FSRS) NextRecallStability(difficulty, stability, r float64, rating types.Rating) float64 {
	hardPenalty := 1.0
	if rating == types.RatingHard {
		hardPenalty = f.w[15]
	}
	easyBonus := 1.0
	if rating == types.RatingEasy {
		easyBonus = f.w[16]
	}

	growth := math.Exp(f.w[8]) *
		(11 - difficulty) *
		math.Pow(stability, -f.w[9]) *
		(math.Exp(f.w[10]*(1-r)) - 1) *
		hardPenalty * easyBonus

	return math.Max(stability*(1+growth), minStability)
}

// NextForgetStability computes post-lapse stability. It is penalized by
// difficulty and never exceeds the pre-lapse stability.
func (f *FSRS) NextForgetStability(difficulty, stability, r float64) float64 {
	s := f.w[11] *
		math.Pow(difficulty, -f.w[12]) *
		(math.Pow(stability+1, f.w[13]) - 1) *
		math.Exp(f.w[14]*(1-r))
	return math.Max(math.Min(s, stability), minStability)
}

// NextShortTermStability applies the learning-state adjustment
// s' = s·e^(w17·(g−3+w18)).
func (f *FSRS) NextShortTermStability(stability float64, rating types.Rating) float64 {
	s := stability * math.Exp(f.w[17]*(float64(int(rating))-3+f.w[18]))
	return math.Max(s, minStability)
}

// NextDifficulty steps difficulty by −w6·(g−3), damped so the step shrinks
// as difficulty approaches the hard end of the scale, then mean-reverts
// toward the Easy initial difficulty by w7.
func (f *FSRS) NextDifficulty(difficulty float64, rating types.Rating) float64 {
	delta := -f.w[6] * (float64(int(rating)) - 3)
	d := difficulty + delta*(maxDifficulty-difficulty)/9

	target := f.w[4] - math.Exp(f.w[5]*3) + 1 // D0(Easy), unclamped
	d = f.w[7]*target + (1-f.w[7])*d
	return clampDifficulty(d)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

var _ Curve = (*FSRS)(nil)
