package openaiEmbedding

import (
	"context"
	"errors"

	"github.com/openai/openai-go"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

var errEmptyResponse = errors.New("provider returned no embeddings")

// Embedder generates embeddings with the OpenAI API. Dimensions are pinned to
// the shared output dimensionality so vectors stay comparable with the
// google provider.
type Embedder struct {
	client openai.Client
	model  string
	logger *logger_i.Logger
}

func NewEmbedder(client openai.Client, model string) *Embedder {
	return &Embedder{
		client: client,
		model:  model,
		logger: logger_i.NewLogger("openai_embedding"),
	}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(config.EmbeddingOutputDimensionality)),
	})
	if err != nil {
		e.logger.Error("embedding call failed", "error", err)
		return nil, faults.Unavailable("embedding provider", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, faults.Unavailable("embedding provider", errEmptyResponse)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
