package qdrantStore

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/rag/vectorStore"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

var errEmptyCollection = errors.New("empty collection name")

// Store keeps chunk vectors in a qdrant collection, one point per chunk with
// the owning record id in the payload so searches can be scoped by filter.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  uint64
	logger     *logger_i.Logger
}

func NewStore(client *qdrant.Client, collection string) *Store {
	return &Store{
		client:     client,
		collection: collection,
		dimension:  uint64(config.EmbeddingOutputDimensionality),
		logger:     logger_i.NewLogger("qdrant_store"),
	}
}

func (s *Store) EnsureReady(ctx context.Context) error {
	if s.collection == "" {
		return errEmptyCollection
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		s.logger.Error("could not create collection", "collection", s.collection, "error", err)
	}
	return err
}

// ReplaceRecordChunks drops every point the record currently holds and then
// upserts the new set. Running it twice with the same input is a no-op.
func (s *Store) ReplaceRecordChunks(ctx context.Context, recordId string, chunks []vectorStore.StoredChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("mismatch: got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	if err := s.DeleteRecord(ctx, recordId); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.Id),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":  chunk.Id,
				"record_id": chunk.RecordId,
				"seq":       int64(chunk.Seq),
				"content":   chunk.Text,
				"char_len":  int64(chunk.CharLen),
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, recordId string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("record_id", recordId),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func (s *Store) SearchScoped(ctx context.Context, vector []float32, recordIds []string, limit int) ([]vectorStore.Hit, error) {
	if len(recordIds) == 0 || limit <= 0 {
		return nil, nil
	}
	return s.search(ctx, vector, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeywords("record_id", recordIds...),
		},
	}, limit)
}

func (s *Store) SearchRecord(ctx context.Context, vector []float32, recordId string, limit int) ([]vectorStore.Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.search(ctx, vector, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("record_id", recordId),
		},
	}, limit)
}

func (s *Store) search(ctx context.Context, vector []float32, filter *qdrant.Filter, limit int) ([]vectorStore.Hit, error) {
	loggr := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY))

	result, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("error querying qdrant", "error", err)
		return nil, err
	}

	hits := make([]vectorStore.Hit, 0, len(result))
	for _, point := range result {
		chunk := vectorStore.StoredChunk{
			Id:       point.Payload["chunk_id"].GetStringValue(),
			RecordId: point.Payload["record_id"].GetStringValue(),
			Seq:      int(point.Payload["seq"].GetIntegerValue()),
			Text:     point.Payload["content"].GetStringValue(),
			CharLen:  int(point.Payload["char_len"].GetIntegerValue()),
		}
		hits = append(hits, vectorStore.Hit{Chunk: chunk, Score: point.Score})
	}
	return hits, nil
}

// Close releases the underlying grpc connection.
func (s *Store) Close() error {
	return s.client.Close()
}
