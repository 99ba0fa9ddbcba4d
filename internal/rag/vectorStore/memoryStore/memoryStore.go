package memoryStore

import (
	"context"
	"sort"
	"sync"

	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
)

type entry struct {
	chunk  vectorStore.StoredChunk
	vector []float32
}

// Store is the in-memory twin of the qdrant store: same contract, no
// durability. Used in tests and as the degraded-mode fallback when qdrant is
// unreachable at startup.
type Store struct {
	mu      sync.RWMutex
	records map[string][]entry
}

func NewStore() *Store {
	return &Store{
		records: make(map[string][]entry),
	}
}

func (s *Store) EnsureReady(ctx context.Context) error {
	return nil
}

func (s *Store) ReplaceRecordChunks(ctx context.Context, recordId string, chunks []vectorStore.StoredChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errVectorMismatch
	}
	entries := make([]entry, len(chunks))
	for i := range chunks {
		entries[i] = entry{chunk: chunks[i], vector: vectors[i]}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		delete(s.records, recordId)
		return nil
	}
	s.records[recordId] = entries
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, recordId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordId)
	return nil
}

func (s *Store) SearchScoped(ctx context.Context, vector []float32, recordIds []string, limit int) ([]vectorStore.Hit, error) {
	if len(recordIds) == 0 || limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var hits []vectorStore.Hit
	for _, recordId := range recordIds {
		for _, e := range s.records[recordId] {
			hits = append(hits, vectorStore.Hit{
				Chunk: e.chunk,
				Score: vectorStore.Cosine(vector, e.vector),
			})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Store) SearchRecord(ctx context.Context, vector []float32, recordId string, limit int) ([]vectorStore.Hit, error) {
	return s.SearchScoped(ctx, vector, []string{recordId}, limit)
}

// ChunkCount reports how many chunks a record holds. Test helper.
func (s *Store) ChunkCount(recordId string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[recordId])
}
