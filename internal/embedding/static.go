package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Static is a deterministic in-process Provider used in tests and offline
// mode. Registered texts return their fixture vectors; everything else gets
// a stable pseudo-random unit vector derived from the content hash, so equal
// inputs always embed equally and distinct inputs are almost orthogonal.
type Static struct {
	mu       sync.RWMutex
	fixtures map[string][]float32
	dim      int

	// Fail, when set, makes every call return ErrUnavailable. Used to
	// exercise degraded paths.
	Fail bool
}

// NewStatic creates a static provider producing vectors of the given
// dimension.
func NewStatic(dim int) *Static {
	if dim <= 0 {
		dim = 8
	}
	return &Static{fixtures: make(map[string][]float32), dim: dim}
}

// Register pins the vector returned for an exact input text.
func (s *Static) Register(text string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[text] = vec
}

// Embed returns the fixture or hash-derived vector for text.
func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	if s.Fail {
		return nil, ErrUnavailable
	}
	s.mu.RLock()
	vec, ok := s.fixtures[text]
	s.mu.RUnlock()
	if ok {
		return vec, nil
	}
	return s.hashVector(text), nil
}

// EmbedBatch embeds each input independently.
func (s *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the vector length.
func (s *Static) Dimension() int { return s.dim }

// Model returns the synthetic model name.
func (s *Static) Model() string { return "static-test" }

// hashVector derives a unit vector from successive FNV hashes of the text.
func (s *Static) hashVector(text string) []float32 {
	vec := make([]float32, s.dim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map the top bits to [-1, 1).
		v := float64(int64(seed>>11))/float64(1<<52) - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
