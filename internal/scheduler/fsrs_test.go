package scheduler

import (
	"math"
	"testing"

	"github.com/evermind-ai/evermind/pkg/types"
)

func TestRetrievabilityDecreasesWithElapsedTime(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	prev := curve.Retrievability(0, 10)
	if prev != 1 {
		t.Fatalf("retrievability at t=0 should be 1, got %v", prev)
	}
	for _, days := range []float64{0.5, 1, 3, 10, 30, 100, 365} {
		r := curve.Retrievability(days, 10)
		if r >= prev {
			t.Fatalf("retrievability not strictly decreasing at t=%v: %v >= %v", days, r, prev)
		}
		if r <= 0 || r > 1 {
			t.Fatalf("retrievability out of range at t=%v: %v", days, r)
		}
		prev = r
	}
}

func TestRetrievabilityIncreasesWithStability(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	prev := curve.Retrievability(10, 0.5)
	for _, stability := range []float64{1, 2, 5, 20, 100} {
		r := curve.Retrievability(10, stability)
		if r <= prev {
			t.Fatalf("retrievability not strictly increasing at s=%v: %v <= %v", stability, r, prev)
		}
		prev = r
	}
}

func TestIntervalInvertsRetrievability(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	for _, stability := range []float64{0.5, 1, 7, 42, 200} {
		interval := curve.Interval(stability, 0.9)
		r := curve.Retrievability(interval, stability)
		if math.Abs(r-0.9) > 1e-9 {
			t.Errorf("R(Interval(s=%v)) = %v, want 0.9", stability, r)
		}
	}
}

func TestStabilityInterpretableAsNinetyPercentHorizon(t *testing.T) {
	// The factor calibration makes Interval(s, 0.9) == s.
	curve := NewFSRS(types.DefaultParameters())
	if got := curve.Interval(12, 0.9); math.Abs(got-12) > 1e-9 {
		t.Errorf("Interval(12, 0.9) = %v, want 12", got)
	}
}

func TestInitialStabilityOrderedByRating(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	ratings := []types.Rating{types.RatingAgain, types.RatingHard, types.RatingGood, types.RatingEasy}
	for i := 1; i < len(ratings); i++ {
		lo := curve.InitialStability(ratings[i-1])
		hi := curve.InitialStability(ratings[i])
		if hi <= lo {
			t.Errorf("initial stability for %s (%v) not above %s (%v)",
				ratings[i], hi, ratings[i-1], lo)
		}
	}
}

func TestInitialDifficultyHardestForAgain(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	dAgain := curve.InitialDifficulty(types.RatingAgain)
	dEasy := curve.InitialDifficulty(types.RatingEasy)
	if dAgain <= dEasy {
		t.Errorf("Again difficulty %v should exceed Easy difficulty %v", dAgain, dEasy)
	}
	for _, r := range []types.Rating{types.RatingAgain, types.RatingHard, types.RatingGood, types.RatingEasy} {
		d := curve.InitialDifficulty(r)
		if d < 1 || d > 10 {
			t.Errorf("initial difficulty for %s out of [1,10]: %v", r, d)
		}
	}
}

func TestRecallStabilityGainsOrderedByRating(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())
	const difficulty, stability, r = 5.0, 10.0, 0.9

	sHard := curve.NextRecallStability(difficulty, stability, r, types.RatingHard)
	sGood := curve.NextRecallStability(difficulty, stability, r, types.RatingGood)
	sEasy := curve.NextRecallStability(difficulty, stability, r, types.RatingEasy)

	if !(sHard < sGood && sGood < sEasy) {
		t.Errorf("stability gains not ordered Hard < Good < Easy: %v, %v, %v", sHard, sGood, sEasy)
	}
	if sHard <= stability {
		t.Errorf("successful recall should still grow stability, got %v from %v", sHard, stability)
	}
}

func TestRecallStabilityGainShrinksWithDifficulty(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())
	const stability, r = 10.0, 0.9

	easyItem := curve.NextRecallStability(2, stability, r, types.RatingGood)
	hardItem := curve.NextRecallStability(9, stability, r, types.RatingGood)
	if hardItem >= easyItem {
		t.Errorf("higher difficulty should yield smaller gains: d=9 -> %v, d=2 -> %v", hardItem, easyItem)
	}
}

func TestForgetStabilityNeverExceedsPrior(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	for _, stability := range []float64{0.5, 2, 20, 150} {
		s := curve.NextForgetStability(5, stability, 0.8)
		if s > stability {
			t.Errorf("post-lapse stability %v exceeds prior %v", s, stability)
		}
		if s < minStability {
			t.Errorf("post-lapse stability %v below floor", s)
		}
	}
}

func TestNextDifficultyMovesTowardRating(t *testing.T) {
	curve := NewFSRS(types.DefaultParameters())

	harder := curve.NextDifficulty(5, types.RatingAgain)
	easier := curve.NextDifficulty(5, types.RatingEasy)
	if harder <= 5 {
		t.Errorf("Again should raise difficulty, got %v", harder)
	}
	if easier >= 5 {
		t.Errorf("Easy should lower difficulty, got %v", easier)
	}

	// Repeated Again ratings stay clamped inside the scale.
	d := 9.8
	for i := 0; i < 50; i++ {
		d = curve.NextDifficulty(d, types.RatingAgain)
		if d < 1 || d > 10 {
			t.Fatalf("difficulty escaped [1,10]: %v", d)
		}
	}
}
