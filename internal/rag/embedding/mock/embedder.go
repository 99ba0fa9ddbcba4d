package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Embedder is a deterministic in-memory embedder for tests and local runs.
// The same text always yields the same unit vector, and vectors for distinct
// texts differ, so ranking assertions are stable.
type Embedder struct {
	// EmbedQueryFunc overrides EmbedQuery when set.
	EmbedQueryFunc func(ctx context.Context, text string) ([]float32, error)
	// EmbedChunksFunc overrides EmbedChunks when set.
	EmbedChunksFunc func(ctx context.Context, texts []string) ([][]float32, error)

	Dim int

	mu    sync.Mutex
	calls int
}

func NewEmbedder() *Embedder {
	return &Embedder{Dim: 64}
}

func (m *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.count()
	if m.EmbedQueryFunc != nil {
		return m.EmbedQueryFunc(ctx, text)
	}
	return DeterministicVector(text, m.Dim), nil
}

func (m *Embedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	m.count()
	if m.EmbedChunksFunc != nil {
		return m.EmbedChunksFunc(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = DeterministicVector(text, m.Dim)
	}
	return vectors, nil
}

func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Embedder) count() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

// DeterministicVector hashes text into a normalized pseudo-random vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000)/500.0 - 1.0
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		inv := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= inv
		}
	}
	return vector
}
