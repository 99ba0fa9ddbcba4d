package vectorStore

import (
	"context"
	"math"
)

// StoredChunk is a bounded span of a record's extracted text. Immutable once
// written; reprocessing replaces a record's chunk set wholesale.
type StoredChunk struct {
	Id       string
	RecordId string
	Seq      int
	Text     string
	CharLen  int
}

// Hit is one scored chunk from a similarity search.
type Hit struct {
	Chunk StoredChunk
	Score float32
}

// ChunkStore persists chunk+vector rows and ranks them by cosine similarity.
//
// Both search methods take an explicit record scope and apply it BEFORE
// ranking: chunks outside the scope are never scored. An empty scope returns
// no hits - callers cannot accidentally search everything.
type ChunkStore interface {
	EnsureReady(ctx context.Context) error
	ReplaceRecordChunks(ctx context.Context, recordId string, chunks []StoredChunk, vectors [][]float32) error
	DeleteRecord(ctx context.Context, recordId string) error
	SearchScoped(ctx context.Context, vector []float32, recordIds []string, limit int) ([]Hit, error)
	SearchRecord(ctx context.Context, vector []float32, recordId string, limit int) ([]Hit, error)
}

// Cosine returns the cosine similarity of two vectors, 0 when either has no
// magnitude or lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
