package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/evermind-ai/evermind/internal/config"
	"github.com/evermind-ai/evermind/internal/embedding"
	"github.com/evermind-ai/evermind/internal/storage"
	"github.com/evermind-ai/evermind/pkg/types"
)

// ScoreComponents breaks a result's relevance down into its signals, for
// explainability and testing.
type ScoreComponents struct {
	Vector   float64 `json:"vector"`
	Entity   float64 `json:"entity"`
	Recency  float64 `json:"recency"`
	Temporal float64 `json:"temporal"`
	Context  float64 `json:"context"`
}

// RankedFact is one hit with its final score and the contributing signals.
type RankedFact struct {
	Fact       types.Fact      `json:"fact"`
	Score      float64         `json:"score"`
	Components ScoreComponents `json:"components"`
}

// RankedResult is the outcome of one ranking call. Abstained is a defined
// successful outcome, not an error: the best available match fell below the
// abstention threshold and no results are presented. LowConfidence flags a
// populated result set whose top score sits between the abstention and
// low-confidence thresholds; callers must surface that flag, never present
// such results as confident answers.
type RankedResult struct {
	Results       []RankedFact `json:"results"`
	Abstained     bool         `json:"abstained"`
	LowConfidence bool         `json:"low_confidence"`
	TopScore      float64      `json:"top_score"`
}

// Ranker scores current facts against a query using embedding similarity,
// entity overlap, recency, temporal relevance, and context reinstatement.
// It holds no mutable state: ranking is a pure read and safe to run with
// unbounded parallelism.
type Ranker struct {
	facts    storage.FactStore
	records  storage.RecordStore
	embedder embedding.Provider // nil degrades to non-vector signals
	cfg      func() config.RetrievalConfig
}

// NewRanker creates a ranker. embedder may be nil; cfg nil falls back to
// the defaults.
func NewRanker(facts storage.FactStore, records storage.RecordStore, embedder embedding.Provider, cfg func() config.RetrievalConfig) *Ranker {
	if cfg == nil {
		def := config.Default().Retrieval
		cfg = func() config.RetrievalConfig { return def }
	}
	return &Ranker{facts: facts, records: records, embedder: embedder, cfg: cfg}
}

// Rank scores every current fact against the query and returns the top k,
// applying the abstention policy. k <= 0 or above the configured cap means
// the cap.
func (r *Ranker) Rank(ctx context.Context, queryText string, queryCtx *types.QueryContext, k int) (*RankedResult, error) {
	cfg := r.cfg()
	if k <= 0 || k > cfg.MaxFactsPerQuery {
		k = cfg.MaxFactsPerQuery
	}

	facts, err := r.facts.CurrentFacts(ctx, storage.FactFilter{Limit: 10000})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load current facts: %w", err)
	}
	if len(facts) == 0 {
		return &RankedResult{Abstained: true}, nil
	}

	var queryVec []float32
	if r.embedder != nil {
		queryVec, err = r.embedder.Embed(ctx, queryText)
		if err != nil {
			// Degrade to the non-vector signals.
			log.Printf("engine: query embedding unavailable, ranking without vector signal: %v", err)
			queryVec = nil
		}
	}

	queryEntities := extractEntities(queryText)
	queryWindow := parseTemporalWindow(queryText, time.Now())
	now := time.Now()

	contexts := make(map[string]*types.EncodingContext)
	ranked := make([]RankedFact, 0, len(facts))
	for _, fact := range facts {
		comp := ScoreComponents{
			Vector:   embedding.CosineSimilarity(queryVec, fact.Embedding),
			Entity:   entityOverlap(queryEntities, &fact),
			Recency:  recencyScore(now.Sub(fact.DocumentDate), cfg.RecencyHalfLifeDays),
			Temporal: temporalScore(queryWindow, fact.EventDate),
			Context:  0.5,
		}

		score := cfg.VectorWeight*comp.Vector +
			cfg.EntityWeight*comp.Entity +
			cfg.RecencyWeight*comp.Recency +
			cfg.TemporalWeight*comp.Temporal

		if queryCtx != nil {
			comp.Context = MatchContext(r.recordContext(ctx, contexts, fact.RecordID), queryCtx)
			score += cfg.ContextBoostWeight * comp.Context
		}
		if score > 1 {
			score = 1
		}

		ranked = append(ranked, RankedFact{Fact: fact, Score: score, Components: comp})
	}

	// Deterministic order: score, then fresher document date, then id.
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].Fact.DocumentDate.Equal(ranked[j].Fact.DocumentDate) {
			return ranked[i].Fact.DocumentDate.After(ranked[j].Fact.DocumentDate)
		}
		return ranked[i].Fact.ID < ranked[j].Fact.ID
	})

	top := ranked[0].Score
	if top < cfg.AbstentionThreshold {
		return &RankedResult{Abstained: true, TopScore: top}, nil
	}
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return &RankedResult{
		Results:       ranked,
		LowConfidence: top < cfg.LowConfidenceThreshold,
		TopScore:      top,
	}, nil
}

// recordContext loads (and memoizes per call) the encoding context of the
// record a fact came from.
func (r *Ranker) recordContext(ctx context.Context, cache map[string]*types.EncodingContext, recordID string) *types.EncodingContext {
	if recordID == "" || r.records == nil {
		return nil
	}
	if cached, ok := cache[recordID]; ok {
		return cached
	}
	var ec *types.EncodingContext
	if rec, err := r.records.GetRecord(ctx, recordID); err == nil {
		ec = rec.Context
	}
	cache[recordID] = ec
	return ec
}

// entityOverlap is the fraction of query entities appearing as the fact's
// subject or object. No recognizable entities in the query scores 0.
func entityOverlap(queryEntities []string, fact *types.Fact) float64 {
	if len(queryEntities) == 0 {
		return 0
	}
	subject := types.NormalizeEntity(fact.Subject)
	object := types.NormalizeEntity(fact.Object)

	matched := 0
	for _, ent := range queryEntities {
		if ent == subject || ent == object {
			matched++
		}
	}
	return float64(matched) / float64(len(queryEntities))
}

// extractEntities pulls candidate named entities out of free-text queries:
// capitalized tokens that are not leading sentence words or question words.
func extractEntities(query string) []string {
	var entities []string
	seen := make(map[string]bool)

	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	for i, word := range words {
		runes := []rune(word)
		if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
			continue
		}
		norm := types.NormalizeEntity(word)
		if i == 0 && questionWords[norm] {
			continue
		}
		if !seen[norm] {
			seen[norm] = true
			entities = append(entities, norm)
		}
	}
	return entities
}

var questionWords = map[string]bool{
	"who": true, "what": true, "when": true, "where": true, "why": true,
	"how": true, "which": true, "does": true, "did": true, "is": true,
	"are": true, "was": true, "were": true, "tell": true, "do": true,
}

// recencyScore decays exponentially with the configured half-life: an item
// exactly one half-life old scores 0.5.
func recencyScore(age time.Duration, halfLifeDays float64) float64 {
	days := age.Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * days / halfLifeDays)
}

// temporalWindow is the [From, Until) range a query's temporal expression
// refers to. A nil window means the query has no temporal expression.
type temporalWindow struct {
	From  time.Time
	Until time.Time
}

// temporalScore is 1 when the query's temporal window contains the item's
// event date, 0 when the item has a known event date that contradicts the
// window, and 0.5 neutral when either side has no temporal information.
func temporalScore(window *temporalWindow, eventDate *time.Time) float64 {
	if window == nil || eventDate == nil {
		return 0.5
	}
	if !eventDate.Before(window.From) && eventDate.Before(window.Until) {
		return 1
	}
	return 0
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// parseTemporalWindow recognizes the temporal expressions that dominate
// real queries: today/yesterday, last week/month/year, month names, and
// bare four-digit years. Unrecognized text has no window.
func parseTemporalWindow(query string, now time.Time) *temporalWindow {
	q := strings.ToLower(query)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case strings.Contains(q, "today"):
		return &temporalWindow{From: today, Until: today.AddDate(0, 0, 1)}
	case strings.Contains(q, "yesterday"):
		return &temporalWindow{From: today.AddDate(0, 0, -1), Until: today}
	case strings.Contains(q, "last week"):
		return &temporalWindow{From: today.AddDate(0, 0, -7), Until: today.AddDate(0, 0, 1)}
	case strings.Contains(q, "last month"):
		return &temporalWindow{From: today.AddDate(0, -1, 0), Until: today.AddDate(0, 0, 1)}
	case strings.Contains(q, "last year"):
		return &temporalWindow{From: today.AddDate(-1, 0, 0), Until: today.AddDate(0, 0, 1)}
	}

	for m := time.January; m <= time.December; m++ {
		if strings.Contains(q, strings.ToLower(m.String())) {
			year := now.Year()
			if match := yearPattern.FindString(query); match != "" {
				year, _ = strconv.Atoi(match)
			} else if m > now.Month() {
				year--
			}
			from := time.Date(year, m, 1, 0, 0, 0, 0, now.Location())
			return &temporalWindow{From: from, Until: from.AddDate(0, 1, 0)}
		}
	}

	if match := yearPattern.FindString(query); match != "" {
		year, _ := strconv.Atoi(match)
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
		return &temporalWindow{From: from, Until: from.AddDate(1, 0, 0)}
	}
	return nil
}
