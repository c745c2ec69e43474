package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evermind-ai/evermind/internal/config"
	"github.com/evermind-ai/evermind/internal/embedding"
	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// relationSynonyms hard-codes the relation families that show up constantly
// in extracted facts, so the common cases never depend on the embedding
// collaborator. Everything else falls back to embedding similarity.
var relationSynonyms = map[string]string{
	"works_at":    "works_at",
	"works_for":   "works_at",
	"employed_by": "works_at",
	"employed_at": "works_at",
	"job_at":      "works_at",

	"lives_in":   "lives_in",
	"resides_in": "lives_in",
	"based_in":   "lives_in",
	"located_in": "lives_in",

	"married_to": "married_to",
	"spouse_of":  "married_to",

	"likes":  "likes",
	"enjoys": "likes",
	"loves":  "likes",

	"dislikes": "dislikes",
	"hates":    "dislikes",
}

// Versioner applies fact candidates to the store while preserving the
// single-current-version-per-claim invariant. It decides, per candidate,
// whether to discard it as a restatement, supersede the current fact, or
// reject it as stale.
type Versioner struct {
	store    storage.FactStore
	relStore storage.RelationStore
	embedder embedding.Provider // nil disables similarity; text equality is used
	cfg      func() config.VersioningConfig

	// Relation-family representatives learned at runtime: family name to the
	// embedding of the first relation string filed under it.
	mu       sync.Mutex
	families map[string][]float32
}

// NewVersioner creates a versioner. embedder may be nil; cfg nil falls back
// to the defaults.
func NewVersioner(store storage.FactStore, relStore storage.RelationStore, embedder embedding.Provider, cfg func() config.VersioningConfig) *Versioner {
	if cfg == nil {
		def := config.Default().Versioning
		cfg = func() config.VersioningConfig { return def }
	}
	return &Versioner{
		store:    store,
		relStore: relStore,
		embedder: embedder,
		cfg:      cfg,
		families: make(map[string][]float32),
	}
}

// UpsertFact resolves a candidate against the current fact for its claim
// key and returns the ID of the fact that is current afterwards.
//
// Bands, by similarity of the candidate to the current fact:
//   - at or above the auto-update threshold: near-duplicate restatement —
//     the current fact's evidence is bumped, no new row.
//   - between the conflict and auto-update thresholds: knowledge update —
//     the current fact is superseded.
//   - below the conflict threshold: unrelated claim on the same key — the
//     candidate wins only if its document date is not older than the
//     current fact's; otherwise ErrStaleFact.
//
// A lost compare-and-set race is retried once before surfacing
// ErrVersionConflict.
func (v *Versioner) UpsertFact(ctx context.Context, recordID string, cand types.FactCandidate) (string, error) {
	if cand.Subject == "" || cand.Relation == "" {
		return "", fmt.Errorf("%w: candidate needs subject and relation", storage.ErrInvalidInput)
	}
	if cand.FactText == "" {
		cand.FactText = fmt.Sprintf("%s %s %s", cand.Subject, cand.Relation, cand.Object)
	}
	if cand.DocumentDate.IsZero() {
		cand.DocumentDate = time.Now()
	}

	family := v.resolveRelationFamily(ctx, cand.Relation)

	id, err := v.apply(ctx, recordID, cand, family)
	if errors.Is(err, storage.ErrVersionConflict) {
		// Another writer won the race; re-read and retry once.
		id, err = v.apply(ctx, recordID, cand, family)
	}
	if err != nil {
		return "", err
	}

	v.recordRelationEdge(ctx, cand)
	return id, nil
}

func (v *Versioner) apply(ctx context.Context, recordID string, cand types.FactCandidate, family string) (string, error) {
	cfg := v.cfg()

	current, err := v.store.GetCurrentFact(ctx, cand.Subject, family)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("engine: failed to resolve claim key: %w", err)
	}

	if current == nil {
		fact := v.buildFact(ctx, recordID, cand, family)
		if err := v.store.InsertFact(ctx, fact); err != nil {
			return "", err
		}
		return fact.ID, nil
	}

	sim := v.factSimilarity(ctx, cand.FactText, current)

	switch {
	case sim >= cfg.AutoUpdateThreshold:
		// Restatement of what we already believe.
		if err := v.store.BumpEvidence(ctx, current.ID, cand.Confidence); err != nil {
			return "", fmt.Errorf("engine: failed to bump evidence: %w", err)
		}
		return current.ID, nil

	case sim >= cfg.ConflictSimilarityThreshold:
		fact := v.buildFact(ctx, recordID, cand, family)
		if err := v.store.SupersedeFact(ctx, current.ID, fact); err != nil {
			return "", err
		}
		return fact.ID, nil

	default:
		// Unrelated claim on the same key. Older information never
		// supersedes newer.
		if cand.DocumentDate.Before(current.DocumentDate) {
			return "", fmt.Errorf("%w: candidate dated %s is older than current fact %s (%s)",
				storage.ErrStaleFact, cand.DocumentDate.Format("2006-01-02"),
				current.ID, current.DocumentDate.Format("2006-01-02"))
		}
		fact := v.buildFact(ctx, recordID, cand, family)
		if err := v.store.SupersedeFact(ctx, current.ID, fact); err != nil {
			return "", err
		}
		return fact.ID, nil
	}
}

// History walks the supersede chain for the current fact of a claim key,
// oldest version first.
func (v *Versioner) History(ctx context.Context, subject, relation string) ([]types.Fact, error) {
	family := v.resolveRelationFamily(ctx, relation)
	current, err := v.store.GetCurrentFact(ctx, subject, family)
	if err != nil {
		return nil, err
	}
	return v.store.FactHistory(ctx, current.ID)
}

func (v *Versioner) buildFact(ctx context.Context, recordID string, cand types.FactCandidate, family string) *types.Fact {
	fact := &types.Fact{
		ID:                 "fact:" + uuid.NewString(),
		RecordID:           recordID,
		Subject:            cand.Subject,
		Relation:           cand.Relation,
		Object:             cand.Object,
		FactText:           cand.FactText,
		Confidence:         cand.Confidence,
		DocumentDate:       cand.DocumentDate,
		EventDate:          cand.EventDate,
		TemporalExpression: cand.TemporalExpression,
		RelationFamily:     family,
	}
	if v.embedder != nil {
		if vec, err := v.embedder.Embed(ctx, cand.FactText); err == nil {
			fact.Embedding = vec
			fact.EmbeddingModel = v.embedder.Model()
		}
	}
	return fact
}

// factSimilarity compares a candidate's text to the current fact. With an
// embedding for both sides it is cosine similarity; without, exact text
// equality (1 or 0). Ingestion never blocks on the collaborator.
func (v *Versioner) factSimilarity(ctx context.Context, candText string, current *types.Fact) float64 {
	if v.embedder != nil && len(current.Embedding) > 0 {
		if vec, err := v.embedder.Embed(ctx, candText); err == nil {
			return embedding.CosineSimilarity(vec, current.Embedding)
		}
		log.Printf("engine: embedding unavailable, falling back to text equality for similarity")
	}
	if types.NormalizeEntity(candText) == types.NormalizeEntity(current.FactText) {
		return 1
	}
	return 0
}

// resolveRelationFamily groups semantically equivalent relation strings
// (works_at vs employed_by) under one family. The synonym table handles the
// common vocabulary; unknown relations are grouped by embedding similarity
// against previously seen families, and start a new family when nothing is
// close enough.
func (v *Versioner) resolveRelationFamily(ctx context.Context, relation string) string {
	norm := types.NormalizeEntity(relation)
	if family, ok := relationSynonyms[norm]; ok {
		return family
	}
	if v.embedder == nil {
		return norm
	}

	vec, err := v.embedder.Embed(ctx, norm)
	if err != nil {
		return norm
	}
	threshold := v.cfg().RelationFamilyThreshold

	v.mu.Lock()
	defer v.mu.Unlock()

	bestFamily := ""
	bestSim := 0.0
	for family, rep := range v.families {
		if sim := embedding.CosineSimilarity(vec, rep); sim > bestSim {
			bestFamily, bestSim = family, sim
		}
	}
	if bestFamily != "" && bestSim >= threshold {
		return bestFamily
	}
	v.families[norm] = vec
	return norm
}

// recordRelationEdge mirrors entity-shaped facts into the relation graph
// used for multi-hop traversal. Failures are logged, never propagated;
// the fact itself is already durable.
func (v *Versioner) recordRelationEdge(ctx context.Context, cand types.FactCandidate) {
	if v.relStore == nil || cand.Subject == "" || cand.Object == "" {
		return
	}
	rel := &types.EntityRelation{
		ID:           "rel:" + uuid.NewString(),
		SourceEntity: cand.Subject,
		RelationType: types.NormalizeEntity(cand.Relation),
		TargetEntity: cand.Object,
		Confidence:   cand.Confidence,
		ValidFrom:    cand.DocumentDate,
	}
	if err := v.relStore.UpsertRelation(ctx, rel); err != nil {
		log.Printf("engine: failed to record relation edge %s -%s-> %s: %v",
			cand.Subject, rel.RelationType, cand.Object, err)
	}
}
