package embedding

import (
	"context"
	"math"
	"strings"
)

// HashProvider is the deterministic offline embedder. It spreads each
// word's characters over three hash slots with position-decayed weights
// and L2-normalizes the result. Same text always maps to the same
// vector, so retrieval stays stable with no inference backend at all.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a HashProvider with the given dimension
// (DefaultDimension when <= 0).
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{dimension: dimension}
}

// Embed implements Provider. It never fails.
func (p *HashProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.Vector(text), nil
}

// Vector computes the hash embedding.
func (p *HashProvider) Vector(text string) []float32 {
	d := p.dimension
	acc := make([]float64, d)

	words := strings.Fields(strings.ToLower(text))
	for i, word := range words {
		// Earlier words count more.
		positionWeight := 1.0 / (1.0 + 0.1*float64(i))
		for j, r := range []rune(word) {
			code := int(r)
			acc[(code*31+j)%d] += positionWeight * 0.5
			acc[(code*37+7*j)%d] += positionWeight * 0.3
			acc[(code*41+13*j)%d] += positionWeight * 0.2
		}
	}

	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	vec := make([]float32, d)
	if norm == 0 {
		// All-zero input stays zero, never NaN.
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// Dimension returns the embedding vector dimension.
func (p *HashProvider) Dimension() int {
	return p.dimension
}
