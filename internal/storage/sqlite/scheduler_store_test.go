package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

func TestDecayStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lastReview := time.Now().UTC().Truncate(time.Second)
	state := &types.DecayState{
		RecordID:          "rec:1",
		Stability:         4.2,
		Difficulty:        6.1,
		State:             types.StateReview,
		Reps:              3,
		Lapses:            1,
		LastReview:        &lastReview,
		ScheduledInterval: 7.5,
	}
	if err := store.PutDecayState(ctx, state); err != nil {
		t.Fatalf("PutDecayState() failed: %v", err)
	}

	got, err := store.GetDecayState(ctx, "rec:1")
	if err != nil {
		t.Fatalf("GetDecayState() failed: %v", err)
	}
	if got.Stability != 4.2 || got.Difficulty != 6.1 || got.State != types.StateReview {
		t.Errorf("state mismatch: %+v", got)
	}
	if got.Reps != 3 || got.Lapses != 1 {
		t.Errorf("counters mismatch: reps=%d lapses=%d", got.Reps, got.Lapses)
	}
	if got.LastReview == nil || !got.LastReview.Equal(lastReview) {
		t.Errorf("LastReview: got %v, want %v", got.LastReview, lastReview)
	}

	// Upsert replaces in place.
	state.Stability = 9.0
	state.Reps = 4
	if err := store.PutDecayState(ctx, state); err != nil {
		t.Fatalf("PutDecayState() update failed: %v", err)
	}
	got, _ = store.GetDecayState(ctx, "rec:1")
	if got.Stability != 9.0 || got.Reps != 4 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestPutDecayStateRejectsCorruption(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.PutDecayState(ctx, &types.DecayState{
		RecordID: "rec:1", Stability: -1.0, Difficulty: 5.0, State: types.StateNew,
	})
	if !errors.Is(err, storage.ErrInvalidDecayState) {
		t.Fatalf("negative stability: got %v, want ErrInvalidDecayState", err)
	}
}

func TestReviewLogAppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	for i := 0; i < 3; i++ {
		ev := &types.ReviewEvent{
			ID:               fmt.Sprintf("rev:%d", i),
			RecordID:         "rec:1",
			Rating:           types.RatingGood,
			StateBefore:      types.StateReview,
			ScheduledDays:    float64(i + 1),
			ElapsedDays:      float64(i + 1),
			StabilityBefore:  float64(i + 1),
			StabilityAfter:   float64(i + 2),
			DifficultyBefore: 5.0,
			DifficultyAfter:  4.9,
			Retrievability:   0.9,
			Timestamp:        base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.AppendReview(ctx, ev); err != nil {
			t.Fatalf("AppendReview(%d) failed: %v", i, err)
		}
	}

	history, err := store.ReviewHistory(ctx, "rec:1")
	if err != nil {
		t.Fatalf("ReviewHistory() failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length: got %d, want 3", len(history))
	}
	for i, ev := range history {
		if ev.ID != fmt.Sprintf("rev:%d", i) {
			t.Errorf("history[%d]: got %q, want rev:%d (oldest first)", i, ev.ID, i)
		}
	}
	if history[1].StabilityAfter != 3.0 || history[1].Rating != types.RatingGood {
		t.Errorf("event fields mismatch: %+v", history[1])
	}
}

func TestDueRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	mkRecord := func(id string) {
		t.Helper()
		if err := store.StoreRecord(ctx, testRecord(id, "content for "+id)); err != nil {
			t.Fatalf("store %s failed: %v", id, err)
		}
	}
	mkState := func(id string, lastReview *time.Time, interval float64) {
		t.Helper()
		err := store.PutDecayState(ctx, &types.DecayState{
			RecordID: id, Stability: 1.0, Difficulty: 5.0,
			State: types.StateReview, LastReview: lastReview, ScheduledInterval: interval,
		})
		if err != nil {
			t.Fatalf("put state %s failed: %v", id, err)
		}
	}

	neverReviewed := "rec:never"
	overdue := "rec:overdue"
	notDue := "rec:notdue"
	deleted := "rec:deleted"
	for _, id := range []string{neverReviewed, overdue, notDue, deleted} {
		mkRecord(id)
	}

	tenDaysAgo := now.Add(-10 * 24 * time.Hour)
	yesterday := now.Add(-24 * time.Hour)
	mkState(neverReviewed, nil, 0)
	mkState(overdue, &tenDaysAgo, 3) // due 7 days ago
	mkState(notDue, &yesterday, 30)  // due in 29 days
	mkState(deleted, &tenDaysAgo, 1)

	if err := store.DeleteRecord(ctx, deleted); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	due, err := store.DueRecords(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueRecords() failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due: got %v, want [%s %s]", due, neverReviewed, overdue)
	}
	// Never-reviewed first, then most overdue.
	if due[0] != neverReviewed || due[1] != overdue {
		t.Errorf("due order: got %v", due)
	}
}

func TestDueRecordsBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := store.StoreRecord(ctx, testRecord("rec:1", "boundary")); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	exactlyDue := now.Add(-3 * 24 * time.Hour)
	err := store.PutDecayState(ctx, &types.DecayState{
		RecordID: "rec:1", Stability: 1.0, Difficulty: 5.0,
		State: types.StateReview, LastReview: &exactlyDue, ScheduledInterval: 3,
	})
	if err != nil {
		t.Fatalf("put state failed: %v", err)
	}

	// A record is due when now >= last_review + interval, inclusive.
	due, err := store.DueRecords(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueRecords() failed: %v", err)
	}
	if len(due) != 1 || due[0] != "rec:1" {
		t.Errorf("boundary record not due: %v", due)
	}
}
