package embedding

import "context"

// Embedder is the embedding capability. Vectors have a fixed dimensionality
// so chunk and query vectors stay comparable across calls.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}
