package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client wraps a raw Provider with the resilience layers every collaborator
// call goes through: an LRU cache keyed by content hash, a token-bucket rate
// limiter, a circuit breaker, and bounded retry with backoff.
//
// Client itself implements Provider, so callers never see the layering.
type Client struct {
	inner      Provider
	cache      *lru.Cache[string, []float32]
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	maxChars   int
	backoff    time.Duration // base backoff between retries
}

// ClientOptions tunes the resilience layers. Zero values pick the defaults
// used in production.
type ClientOptions struct {
	MaxInputChars     int
	RequestsPerSecond float64
	CacheSize         int
	MaxRetries        int
	Backoff           time.Duration
}

// NewClient wraps a raw provider.
func NewClient(inner Provider, opts ClientOptions) (*Client, error) {
	if inner == nil {
		return nil, errors.New("embedding: inner provider is required")
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = 8000
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 200 * time.Millisecond
	}

	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding: failed to create cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingProvider",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("embedding: circuit breaker %s -> %s", from, to)
		},
	})

	return &Client{
		inner:      inner,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		breaker:    breaker,
		maxRetries: opts.MaxRetries,
		maxChars:   opts.MaxInputChars,
		backoff:    opts.Backoff,
	}, nil
}

// Embed returns the vector for text, serving from cache when possible.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text, c.maxChars)
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.call(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds several inputs, preserving order. Cached entries are not
// re-requested; only the misses go to the collaborator.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		t = Truncate(t, c.maxChars)
		texts[i] = t
		if vec, ok := c.cache.Get(c.cacheKey(t)); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.callBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%w: collaborator returned %d vectors for %d inputs",
			ErrUnavailable, len(vecs), len(missTexts))
	}
	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.cache.Add(c.cacheKey(missTexts[j]), vec)
	}
	return out, nil
}

// Dimension reports the wrapped provider's vector dimension.
func (c *Client) Dimension() int { return c.inner.Dimension() }

// Model reports the wrapped provider's model name.
func (c *Client) Model() string { return c.inner.Model() }

func (c *Client) call(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := c.execute(ctx, func() error {
		v, err := c.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	return vec, err
}

func (c *Client) callBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := c.execute(ctx, func() error {
		v, err := c.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		vecs = v
		return nil
	})
	return vecs, err
}

// execute runs fn through the rate limiter, circuit breaker, and retry loop.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := c.breaker.Execute(func() (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Model() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
