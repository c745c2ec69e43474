package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingProvider counts collaborator calls and can be told to fail.
type countingProvider struct {
	inner *Static
	calls atomic.Int64
	fail  atomic.Bool
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return nil, errors.New("collaborator down")
	}
	return p.inner.Embed(ctx, text)
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return nil, errors.New("collaborator down")
	}
	return p.inner.EmbedBatch(ctx, texts)
}

func (p *countingProvider) Dimension() int { return p.inner.Dimension() }
func (p *countingProvider) Model() string  { return p.inner.Model() }

func newTestClient(t *testing.T) (*Client, *countingProvider) {
	t.Helper()
	inner := &countingProvider{inner: NewStatic(8)}
	client, err := NewClient(inner, ClientOptions{
		RequestsPerSecond: 1000,
		MaxRetries:        1,
		Backoff:           time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, inner
}

func TestClientCachesByContent(t *testing.T) {
	client, inner := newTestClient(t)
	ctx := context.Background()

	first, err := client.Embed(ctx, "coffee with sarah")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	second, err := client.Embed(ctx, "coffee with sarah")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 collaborator call, got %d", got)
	}
	if len(first) != len(second) {
		t.Fatalf("vector lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at index %d", i)
		}
	}
}

func TestClientTruncatesBeforeCaching(t *testing.T) {
	inner := &countingProvider{inner: NewStatic(8)}
	client, err := NewClient(inner, ClientOptions{
		MaxInputChars:     10,
		RequestsPerSecond: 1000,
		Backoff:           time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Embed(ctx, "0123456789 long tail A"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, err := client.Embed(ctx, "0123456789 long tail B"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	// Both inputs truncate to the same prefix and share one cache entry.
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 collaborator call after truncation, got %d", got)
	}
}

func TestClientRetriesThenReportsUnavailable(t *testing.T) {
	client, inner := newTestClient(t)
	inner.fail.Store(true)

	_, err := client.Embed(context.Background(), "anything")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// MaxRetries 1 means two attempts total.
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestClientCircuitOpensAfterRepeatedFailures(t *testing.T) {
	client, inner := newTestClient(t)
	inner.fail.Store(true)
	ctx := context.Background()

	// Distinct inputs so the cache never short-circuits the failing calls.
	for _, text := range []string{"a", "b", "c", "d"} {
		client.Embed(ctx, text)
	}

	before := inner.calls.Load()
	_, err := client.Embed(ctx, "e")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := inner.calls.Load(); got != before {
		t.Errorf("open circuit still reached collaborator (%d extra calls)", got-before)
	}
}

func TestClientBatchMixesCacheAndMisses(t *testing.T) {
	client, inner := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Embed(ctx, "cached"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	callsBefore := inner.calls.Load()

	vecs, err := client.EmbedBatch(ctx, []string{"cached", "fresh"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[0] == nil || vecs[1] == nil {
		t.Fatalf("expected 2 vectors, got %#v", vecs)
	}
	if got := inner.calls.Load() - callsBefore; got != 1 {
		t.Errorf("expected 1 batch call for the miss, got %d", got)
	}
}

func TestTruncateDeterministic(t *testing.T) {
	long := "héllo wörld this is a long input"
	a := Truncate(long, 10)
	b := Truncate(long, 10)
	if a != b {
		t.Fatalf("truncation not deterministic: %q vs %q", a, b)
	}
	if Truncate("short", 100) != "short" {
		t.Error("short input should pass through unchanged")
	}
}
