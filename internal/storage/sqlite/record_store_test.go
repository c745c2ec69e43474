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

func testRecord(id, content string) *types.EpisodicRecord {
	return &types.EpisodicRecord{
		ID:      id,
		Content: content,
		Source:  types.SourceText,
	}
}

func TestStoreAndGetRecordRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	lat, lon := 40.0, -73.0
	weekend := false
	rec := testRecord("rec:1", "Had coffee with Sarah at the new cafe")
	rec.Embedding = []float32{0.1, -0.5, 0.8}
	rec.EmbeddingModel = "text-embedding-3-small"
	rec.EmbeddingDimension = 3
	rec.Context = &types.EncodingContext{
		Latitude:         &lat,
		Longitude:        &lon,
		LocationName:     "Blue Bottle",
		LocationType:     "cafe",
		TimeOfDay:        types.TimeOfDayMorning,
		DayOfWeek:        "Tuesday",
		IsWeekend:        &weekend,
		ActivityCategory: "social",
	}

	if err := store.StoreRecord(ctx, rec); err != nil {
		t.Fatalf("StoreRecord() failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "rec:1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got.Content != rec.Content {
		t.Errorf("Content: got %q", got.Content)
	}
	if len(got.Embedding) != 3 || got.Embedding[2] != 0.8 {
		t.Errorf("Embedding: got %v", got.Embedding)
	}
	if got.Context == nil {
		t.Fatal("Context: got nil")
	}
	if got.Context.LocationType != "cafe" || got.Context.TimeOfDay != types.TimeOfDayMorning {
		t.Errorf("Context round-trip mismatch: %+v", got.Context)
	}
	if got.Context.Latitude == nil || *got.Context.Latitude != 40.0 {
		t.Errorf("Latitude: got %v", got.Context.Latitude)
	}
}

func TestStoreRecordRejectsDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StoreRecord(ctx, testRecord("rec:1", "original")); err != nil {
		t.Fatalf("first store failed: %v", err)
	}
	// Record content is immutable: re-storing the same ID is an error, not
	// an overwrite.
	err := store.StoreRecord(ctx, testRecord("rec:1", "tampered"))
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("duplicate store: got %v, want ErrInvalidInput", err)
	}

	got, _ := store.GetRecord(ctx, "rec:1")
	if got.Content != "original" {
		t.Errorf("content changed: got %q", got.Content)
	}
}

func TestListRecordsPagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := testRecord(fmt.Sprintf("rec:%d", i), fmt.Sprintf("memory %d", i))
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if err := store.StoreRecord(ctx, rec); err != nil {
			t.Fatalf("store %d failed: %v", i, err)
		}
	}

	page1, err := store.ListRecords(ctx, storage.ListOptions{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListRecords() failed: %v", err)
	}
	if page1.Total != 5 || len(page1.Items) != 2 || !page1.HasMore {
		t.Errorf("page 1: total=%d items=%d hasMore=%v", page1.Total, len(page1.Items), page1.HasMore)
	}
	// Newest first.
	if page1.Items[0].ID != "rec:4" {
		t.Errorf("first item: got %q, want rec:4", page1.Items[0].ID)
	}

	page3, err := store.ListRecords(ctx, storage.ListOptions{Page: 3, Limit: 2})
	if err != nil {
		t.Fatalf("ListRecords(page 3) failed: %v", err)
	}
	if len(page3.Items) != 1 || page3.HasMore {
		t.Errorf("page 3: items=%d hasMore=%v", len(page3.Items), page3.HasMore)
	}
}

func TestDeleteRecordSoftDeletes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StoreRecord(ctx, testRecord("rec:1", "to be deleted")); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := store.DeleteRecord(ctx, "rec:1"); err != nil {
		t.Fatalf("DeleteRecord() failed: %v", err)
	}

	if _, err := store.GetRecord(ctx, "rec:1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}

	// Soft-deleted records stay visible when explicitly included.
	all, err := store.ListRecords(ctx, storage.ListOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("ListRecords(IncludeDeleted) failed: %v", err)
	}
	if len(all.Items) != 1 || all.Items[0].DeletedAt == nil {
		t.Errorf("deleted record not retained: %+v", all.Items)
	}
}

func TestIncrementAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StoreRecord(ctx, testRecord("rec:1", "accessed memory")); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.IncrementAccess(ctx, "rec:1"); err != nil {
			t.Fatalf("IncrementAccess() failed: %v", err)
		}
	}

	got, err := store.GetRecord(ctx, "rec:1")
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if got.AccessCount != 3 {
		t.Errorf("AccessCount: got %d, want 3", got.AccessCount)
	}
	if got.LastAccessedAt == nil {
		t.Error("LastAccessedAt: got nil")
	}

	if err := store.IncrementAccess(ctx, "rec:missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("IncrementAccess(missing): got %v, want ErrNotFound", err)
	}
}

func TestPurgeUserDataRemovesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.StoreRecord(ctx, testRecord("rec:1", "content")); err != nil {
		t.Fatalf("store record failed: %v", err)
	}
	if err := store.InsertFact(ctx, testFact("fact:1", "Sarah", "works_at", "Meta", now)); err != nil {
		t.Fatalf("insert fact failed: %v", err)
	}
	if err := store.PutDecayState(ctx, &types.DecayState{
		RecordID: "rec:1", Stability: 1.0, Difficulty: 5.0, State: types.StateNew,
	}); err != nil {
		t.Fatalf("put decay state failed: %v", err)
	}

	if err := store.PurgeUserData(ctx); err != nil {
		t.Fatalf("PurgeUserData() failed: %v", err)
	}

	if _, err := store.GetRecord(ctx, "rec:1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record survived purge: %v", err)
	}
	if _, err := store.GetFact(ctx, "fact:1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("fact survived purge: %v", err)
	}
	if _, err := store.GetDecayState(ctx, "rec:1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("decay state survived purge: %v", err)
	}
}
