package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evermind-ai/evermind/internal/embedding"
	"github.com/evermind-ai/evermind/internal/engine"
	"github.com/evermind-ai/evermind/internal/scheduler"
	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/internal/storage/sqlite"
	"github.com/evermind-ai/evermind/pkg/types"
)

func newPipelineFixture(t *testing.T, extractor Extractor) (*Pipeline, *sqlite.Store, *embedding.Static) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	static := embedding.NewStatic(4)
	versioner := engine.NewVersioner(store, store, static, nil)
	sched := scheduler.New(store, nil)
	return NewPipeline(store, static, extractor, versioner, sched), store, static
}

func staticExtractor(candidates []types.FactCandidate) Extractor {
	return ExtractorFunc(func(_ context.Context, _ string, _ time.Time) ([]types.FactCandidate, error) {
		return candidates, nil
	})
}

func TestIngestStoresRecordFactsAndDecayState(t *testing.T) {
	extractor := staticExtractor([]types.FactCandidate{{
		FactText:   "Sarah works at Meta",
		Subject:    "Sarah",
		Relation:   "works_at",
		Object:     "Meta",
		Confidence: 0.9,
	}})
	p, store, _ := newPipelineFixture(t, extractor)
	ctx := context.Background()

	result, err := p.Ingest(ctx, "had lunch with Sarah, she started at Meta", types.SourceText, time.Now(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.FactIDs) != 1 {
		t.Fatalf("fact IDs = %v, want 1", result.FactIDs)
	}

	rec, err := store.GetRecord(ctx, result.Record.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if len(rec.Embedding) == 0 {
		t.Error("record should carry an embedding")
	}

	fact, err := store.GetCurrentFact(ctx, "Sarah", "works_at")
	if err != nil {
		t.Fatalf("GetCurrentFact: %v", err)
	}
	if fact.RecordID != rec.ID {
		t.Errorf("fact record_id = %q, want %q", fact.RecordID, rec.ID)
	}

	state, err := store.GetDecayState(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetDecayState: %v", err)
	}
	if state.State != types.StateNew {
		t.Errorf("decay state = %s, want new", state.State)
	}
}

func TestIngestSurvivesExtractorFailure(t *testing.T) {
	failing := ExtractorFunc(func(_ context.Context, _ string, _ time.Time) ([]types.FactCandidate, error) {
		return nil, errors.New("collaborator down")
	})
	p, store, _ := newPipelineFixture(t, failing)

	result, err := p.Ingest(context.Background(), "a note", types.SourceText, time.Now(), nil)
	if err != nil {
		t.Fatalf("Ingest must not fail on extractor failure: %v", err)
	}
	if len(result.FactIDs) != 0 {
		t.Errorf("no facts expected, got %v", result.FactIDs)
	}
	if _, err := store.GetRecord(context.Background(), result.Record.ID); err != nil {
		t.Errorf("record must still be stored: %v", err)
	}
}

func TestIngestSurvivesEmbeddingFailure(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	broken := embedding.NewStatic(4)
	broken.Fail = true
	versioner := engine.NewVersioner(store, store, broken, nil)
	p := NewPipeline(store, broken, staticExtractor([]types.FactCandidate{{
		FactText: "Sarah works at Meta", Subject: "Sarah", Relation: "works_at",
		Object: "Meta", Confidence: 0.9,
	}}), versioner, scheduler.New(store, nil))

	result, err := p.Ingest(context.Background(), "a note", types.SourceText, time.Now(), nil)
	if err != nil {
		t.Fatalf("Ingest must not fail when embedding is down: %v", err)
	}

	rec, err := store.GetRecord(context.Background(), result.Record.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if len(rec.Embedding) != 0 {
		t.Error("expected record without embedding")
	}
	// Facts still land, resolved by text equality instead of similarity.
	if len(result.FactIDs) != 1 {
		t.Errorf("fact IDs = %v, want 1", result.FactIDs)
	}
}

func TestIngestCapsCandidates(t *testing.T) {
	var candidates []types.FactCandidate
	for i := 0; i < 15; i++ {
		candidates = append(candidates, types.FactCandidate{
			FactText:   "fact number " + string(rune('a'+i)),
			Subject:    "Sarah",
			Relation:   "relation_" + string(rune('a'+i)),
			Object:     "x",
			Confidence: 0.8,
		})
	}
	p, _, _ := newPipelineFixture(t, staticExtractor(candidates))

	result, err := p.Ingest(context.Background(), "a busy day", types.SourceText, time.Now(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.FactIDs) != MaxCandidatesPerCall {
		t.Errorf("applied %d facts, want cap of %d", len(result.FactIDs), MaxCandidatesPerCall)
	}
}

func TestBatchCandidatesApplyInDocumentDateOrder(t *testing.T) {
	d1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Listed newest first; the pipeline must re-order so the Google fact
	// (newer) ends up current rather than stale-rejected.
	p, store, static := newPipelineFixture(t, staticExtractor([]types.FactCandidate{
		{FactText: "Sarah works at Google", Subject: "Sarah", Relation: "works_at",
			Object: "Google", Confidence: 0.9, DocumentDate: d2},
		{FactText: "Sarah works at Meta", Subject: "Sarah", Relation: "works_at",
			Object: "Meta", Confidence: 0.9, DocumentDate: d1},
	}))
	static.Register("Sarah works at Meta", []float32{1, 0, 0, 0})
	static.Register("Sarah works at Google", []float32{0.9, 0.43589, 0, 0})

	result, err := p.Ingest(context.Background(), "career history", types.SourceText, time.Now(), nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.StaleFacts != 0 {
		t.Errorf("stale rejections = %d, want 0 after ordering", result.StaleFacts)
	}

	cur, err := store.GetCurrentFact(context.Background(), "Sarah", "works_at")
	if err != nil {
		t.Fatalf("GetCurrentFact: %v", err)
	}
	if cur.Object != "Google" {
		t.Errorf("current object = %q, want Google (the newer claim)", cur.Object)
	}
}

func TestIngestRejectsEmptyContent(t *testing.T) {
	p, _, _ := newPipelineFixture(t, nil)

	_, err := p.Ingest(context.Background(), "", types.SourceText, time.Now(), nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
