package types

import (
	"testing"
	"time"
)

func TestBucketTimeOfDay(t *testing.T) {
	cases := []struct {
		hour int
		want TimeOfDay
	}{
		{5, TimeOfDayMorning},
		{11, TimeOfDayMorning},
		{12, TimeOfDayAfternoon},
		{16, TimeOfDayAfternoon},
		{17, TimeOfDayEvening},
		{21, TimeOfDayEvening},
		{22, TimeOfDayNight},
		{3, TimeOfDayNight},
	}
	for _, tc := range cases {
		ts := time.Date(2025, 6, 1, tc.hour, 30, 0, 0, time.UTC)
		if got := BucketTimeOfDay(ts); got != tc.want {
			t.Errorf("BucketTimeOfDay(hour=%d): got %q, want %q", tc.hour, got, tc.want)
		}
	}
}

func TestFactClaimKey(t *testing.T) {
	f := &Fact{Subject: " Sarah ", Relation: "works_at"}
	if got := f.ClaimKey(); got != "sarah|works_at" {
		t.Errorf("ClaimKey: got %q", got)
	}

	// RelationFamily takes precedence over the raw relation string.
	f.RelationFamily = "employment"
	if got := f.ClaimKey(); got != "sarah|employment" {
		t.Errorf("ClaimKey with family: got %q", got)
	}
}

func TestFactValidate(t *testing.T) {
	now := time.Now()
	valid := &Fact{
		ID:           "fact:1",
		Subject:      "Sarah",
		Relation:     "works_at",
		Object:       "Meta",
		Confidence:   0.9,
		DocumentDate: now,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid fact rejected: %v", err)
	}

	bad := *valid
	bad.Confidence = 1.2
	if err := bad.Validate(); err == nil {
		t.Error("confidence > 1 accepted")
	}

	bad = *valid
	bad.Subject = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty subject accepted")
	}

	bad = *valid
	bad.DocumentDate = time.Time{}
	if err := bad.Validate(); err == nil {
		t.Error("zero document date accepted")
	}
}

func TestDecayStateValidate(t *testing.T) {
	good := &DecayState{RecordID: "rec:1", Stability: 1.0, Difficulty: 5.0, State: StateNew}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid decay state rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*DecayState)
	}{
		{"negative stability", func(d *DecayState) { d.Stability = -0.5 }},
		{"zero stability", func(d *DecayState) { d.Stability = 0 }},
		{"difficulty below range", func(d *DecayState) { d.Difficulty = 0.5 }},
		{"difficulty above range", func(d *DecayState) { d.Difficulty = 11 }},
		{"unknown state", func(d *DecayState) { d.State = "limbo" }},
		{"negative lapses", func(d *DecayState) { d.Lapses = -1 }},
	}
	for _, tc := range cases {
		d := *good
		tc.mutate(&d)
		if err := d.Validate(); err == nil {
			t.Errorf("%s: corrupted state accepted", tc.name)
		}
	}
}

func TestDefaultParametersValid(t *testing.T) {
	p := DefaultParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("default parameters invalid: %v", err)
	}

	// Initial stability must be monotone in rating: a better first rating
	// never yields a shorter-lived memory.
	w := p.Weights
	if !(w[0] < w[1] && w[1] < w[2] && w[2] < w[3]) {
		t.Errorf("initial stability weights not increasing: %v", w[:4])
	}
}

func TestRatingValid(t *testing.T) {
	for r := RatingAgain; r <= RatingEasy; r++ {
		if !r.Valid() {
			t.Errorf("rating %d should be valid", r)
		}
	}
	if Rating(0).Valid() || Rating(5).Valid() {
		t.Error("out-of-range rating accepted")
	}
}
