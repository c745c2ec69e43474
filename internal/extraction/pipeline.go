package extraction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/evermind-ai/evermind/internal/embedding"
	"github.com/evermind-ai/evermind/internal/engine"
	"github.com/evermind-ai/evermind/internal/scheduler"
	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// Pipeline is the ingestion path for new episodic text: store the record,
// seed its decay state, then extract and apply facts. Only record storage
// is load-bearing; embedding and extraction are best-effort and their
// failure never fails ingestion.
type Pipeline struct {
	records   storage.RecordStore
	embedder  embedding.Provider // nil skips embedding
	extractor Extractor          // nil skips extraction
	versioner *engine.Versioner
	scheduler *scheduler.Scheduler
}

// NewPipeline wires the ingestion pipeline. embedder and extractor may be
// nil for degraded/offline operation.
func NewPipeline(records storage.RecordStore, embedder embedding.Provider, extractor Extractor, versioner *engine.Versioner, sched *scheduler.Scheduler) *Pipeline {
	return &Pipeline{
		records:   records,
		embedder:  embedder,
		extractor: extractor,
		versioner: versioner,
		scheduler: sched,
	}
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	Record      *types.EpisodicRecord
	FactIDs     []string
	StaleFacts  int // candidates rejected as older than current knowledge
	FailedFacts int // candidates that errored for other reasons
}

// Ingest stores one captured episode and derives everything from it.
func (p *Pipeline) Ingest(ctx context.Context, content string, source types.RecordSource, occurredAt time.Time, encCtx *types.EncodingContext) (*IngestResult, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: record content is required", storage.ErrInvalidInput)
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	if source == "" {
		source = types.SourceText
	}

	rec := &types.EpisodicRecord{
		ID:        "rec:" + uuid.NewString(),
		Content:   content,
		Source:    source,
		Timestamp: occurredAt,
		Context:   encCtx,
	}

	if p.embedder != nil {
		if vec, err := p.embedder.Embed(ctx, content); err != nil {
			log.Printf("extraction: embedding unavailable for record, storing without vector: %v", err)
		} else {
			rec.Embedding = vec
			rec.EmbeddingModel = p.embedder.Model()
			rec.EmbeddingDimension = len(vec)
		}
	}

	if err := p.records.StoreRecord(ctx, rec); err != nil {
		return nil, err
	}

	if p.scheduler != nil {
		if _, err := p.scheduler.InitState(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("extraction: failed to seed decay state: %w", err)
		}
	}

	result := &IngestResult{Record: rec}
	p.applyFacts(ctx, rec, occurredAt, result)
	return result, nil
}

// applyFacts runs extraction and feeds the candidates through the
// versioner. Candidates from one batch that target the same claim key must
// land in document-date order, so the whole batch is sorted and applied
// sequentially.
func (p *Pipeline) applyFacts(ctx context.Context, rec *types.EpisodicRecord, docDate time.Time, result *IngestResult) {
	if p.extractor == nil || p.versioner == nil {
		return
	}

	candidates, err := p.extractor.Extract(ctx, rec.Content, docDate)
	if err != nil {
		log.Printf("extraction: extractor unavailable, skipping facts for %s: %v", rec.ID, err)
		return
	}
	if len(candidates) > MaxCandidatesPerCall {
		log.Printf("extraction: extractor returned %d candidates, keeping first %d",
			len(candidates), MaxCandidatesPerCall)
		candidates = candidates[:MaxCandidatesPerCall]
	}

	for i := range candidates {
		if candidates[i].DocumentDate.IsZero() {
			candidates[i].DocumentDate = docDate
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].DocumentDate.Before(candidates[j].DocumentDate)
	})

	for _, cand := range candidates {
		id, err := p.versioner.UpsertFact(ctx, rec.ID, cand)
		switch {
		case err == nil:
			result.FactIDs = append(result.FactIDs, id)
		case isStale(err):
			result.StaleFacts++
			log.Printf("extraction: stale candidate dropped for %s: %v", rec.ID, err)
		default:
			result.FailedFacts++
			log.Printf("extraction: candidate failed for %s: %v", rec.ID, err)
		}
	}
}

func isStale(err error) bool {
	return errors.Is(err, storage.ErrStaleFact)
}
