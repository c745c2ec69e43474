// Package extraction defines the fact-extraction collaborator interface and
// the ingestion pipeline that turns raw episodic text into stored records,
// facts, and scheduler state.
package extraction

import (
	"context"
	"time"

	"github.com/evermind-ai/evermind/pkg/types"
)

// MaxCandidatesPerCall caps how many candidates one extraction may yield.
// The pipeline truncates anything beyond it rather than failing.
const MaxCandidatesPerCall = 10

// Extractor maps raw episodic text to candidate atomic facts. Implemented
// by an external collaborator (typically LLM-backed); may return an empty
// list, and may fail — the pipeline treats failure as "no facts", never as
// a reason to reject the record.
type Extractor interface {
	Extract(ctx context.Context, text string, documentDate time.Time) ([]types.FactCandidate, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, text string, documentDate time.Time) ([]types.FactCandidate, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, text string, documentDate time.Time) ([]types.FactCandidate, error) {
	return f(ctx, text, documentDate)
}
