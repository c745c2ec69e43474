package embedding

import (
	"context"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"scaled copy", []float32{1, 2}, []float32{2, 4}, 1},
		{"dimension mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, []float32{1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestStaticDeterministic(t *testing.T) {
	s := NewStatic(16)
	ctx := context.Background()

	a1, err := s.Embed(ctx, "same input")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, _ := s.Embed(ctx, "same input")
	if CosineSimilarity(a1, a2) != 1 {
		t.Error("equal inputs must embed identically")
	}

	b, _ := s.Embed(ctx, "entirely different input")
	if sim := CosineSimilarity(a1, b); sim > 0.9 {
		t.Errorf("distinct inputs should not be near-identical, got similarity %v", sim)
	}
}

func TestStaticFixturesOverrideHash(t *testing.T) {
	s := NewStatic(3)
	s.Register("pinned", []float32{0, 1, 0})

	vec, err := s.Embed(context.Background(), "pinned")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec[0] != 0 || vec[1] != 1 || vec[2] != 0 {
		t.Errorf("fixture not returned: %v", vec)
	}
}

func TestStaticVectorsAreUnitLength(t *testing.T) {
	s := NewStatic(32)
	vec, _ := s.Embed(context.Background(), "norm check")

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-3 {
		t.Errorf("expected unit vector, norm = %v", math.Sqrt(norm))
	}
}
