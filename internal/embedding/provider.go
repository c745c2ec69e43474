// Package embedding wraps the external embedding collaborator behind a
// resilient client: circuit breaking, rate limiting, bounded retry, and an
// in-process cache. Callers treat embedding as best-effort; every consumer
// degrades gracefully when the collaborator is down.
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the collaborator cannot serve the request
// right now (circuit open, transport down, retries exhausted). Callers that
// can degrade should treat this as "proceed without a vector".
var ErrUnavailable = errors.New("embedding provider unavailable")

// Provider produces embedding vectors for text.
type Provider interface {
	// Embed returns the vector for one input. Inputs longer than the
	// provider's limit are truncated deterministically before embedding, so
	// equal inputs always yield equal vectors.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several inputs, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector this provider returns.
	Dimension() int

	// Model names the collaborator model, stored alongside vectors.
	Model() string
}

// Truncate cuts text to at most maxChars runes. Equal
// inputs always truncate to equal outputs, which keeps cache keys and
// stored vectors stable.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
