package embedding

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity returns the cosine of the angle between two vectors,
// clamped to [0, 1]. Mismatched dimensions or zero vectors score 0 rather
// than erroring; similarity is always a soft signal here.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	fa := toFloat64(a)
	fb := toFloat64(b)

	normA := floats.Norm(fa, 2)
	normB := floats.Norm(fb, 2)
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := floats.Dot(fa, fb) / (normA * normB)
	if math.IsNaN(cos) || cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
