package main

import (
	"strings"
	"testing"
	"time"

	"github.com/evermind-ai/evermind/pkg/types"
)

func TestParseRating(t *testing.T) {
	tests := []struct {
		input   string
		want    types.Rating
		wantErr bool
	}{
		{"again", types.RatingAgain, false},
		{"hard", types.RatingHard, false},
		{"good", types.RatingGood, false},
		{"easy", types.RatingEasy, false},
		{"GOOD", types.RatingGood, false},
		{" easy ", types.RatingEasy, false},
		{"1", types.RatingAgain, false},
		{"4", types.RatingEasy, false},
		{"perfect", 0, true},
		{"", 0, true},
		{"5", 0, true},
	}

	for _, tt := range tests {
		got, err := parseRating(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRating(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRating(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRating(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ev := types.ReviewEvent{
		ID:              "rev:1",
		RecordID:        "rec:1",
		Rating:          types.RatingGood,
		StabilityBefore: 2.5,
		StabilityAfter:  6.25,
		ScheduledDays:   6.2,
		Timestamp:       time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
	}

	line := formatEvent(ev)
	for _, want := range []string{
		"2026-08-01T09:30:00Z",
		"good",
		"stability 2.50 -> 6.25",
		"interval 6.2d",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("formatEvent output %q missing %q", line, want)
		}
	}
}
