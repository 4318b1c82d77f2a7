package memsvc

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder converts text to a vector for similarity search.
// The default HashEmbedder keeps the service fully self-contained;
// build with the onnx tag for real semantic embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder produces deterministic pseudo-embeddings from a text
// hash. Identical texts map to identical vectors, so exact-recall and
// dedup behavior is testable offline, but there is no semantic
// similarity between different texts.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder. Dimensions <= 0 defaults
// to 384, matching the all-MiniLM-L6-v2 shape the onnx embedder uses.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed hashes the text and expands the hash through a splitmix64
// stream into a unit vector.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()

	vec := make([]float32, e.dimensions)
	var sumSquares float64
	for i := range vec {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31

		v := float32(int64(z)) / float32(math.MaxInt64)
		vec[i] = v
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares > 0 {
		scale := float32(1 / math.Sqrt(sumSquares))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}
