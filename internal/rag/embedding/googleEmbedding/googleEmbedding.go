package googleEmbedding

import (
	"context"
	"time"

	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

var dimension = config.EmbeddingOutputDimensionality

type client struct {
	genAi  *genai.Client
	model  string
	logger *logger_i.Logger
}

// NewEmbedder wraps an existing genai client; the caller owns the client's
// lifetime.
func NewEmbedder(genAi *genai.Client, model string) *client {
	return &client{
		genAi:  genAi,
		model:  model,
		logger: logger_i.NewLogger("google_embedding"),
	}
}

func (c *client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	result, err := c.genAi.Models.EmbedContent(ctx, c.model, genai.Text(query),
		&genai.EmbedContentConfig{OutputDimensionality: &dimension, TaskType: "RETRIEVAL_QUERY"})
	if err != nil {
		c.logger.Error("query embedding failed", "error", err)
		return nil, faults.Unavailable("embedding provider", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, faults.Unavailable("embedding provider", errEmptyResponse)
	}
	return result.Embeddings[0].Values, nil
}

func (c *client) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := c.doCall(ctx, getContent(texts))
	if err != nil && isRateLimited(err) {
		c.logger.Warn("rate limit hit, retrying once", "delay", "5s")
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, faults.Unavailable("embedding provider", ctx.Err())
		}
		res, err = c.doCall(ctx, getContent(texts))
	}
	if err != nil {
		c.logger.Error("batch embedding failed", "error", err)
		return nil, faults.Unavailable("embedding provider", err)
	}
	return collectEmbeddings(res, len(texts))
}

// collectEmbeddings maps the response onto one vector per input text. A
// response with fewer embeddings than texts fails whole so no caller ever
// pairs a chunk with a nil vector.
func collectEmbeddings(res *genai.EmbedContentResponse, want int) ([][]float32, error) {
	if res == nil || len(res.Embeddings) == 0 {
		return nil, faults.Unavailable("embedding provider", errEmptyResponse)
	}
	if len(res.Embeddings) != want {
		return nil, faults.Unavailable("embedding provider", errPartialResponse)
	}

	results := make([][]float32, 0, want)
	for _, r := range res.Embeddings {
		results = append(results, r.Values)
	}
	return results, nil
}

func (c *client) doCall(ctx context.Context, content []*genai.Content) (*genai.EmbedContentResponse, error) {
	return c.genAi.Models.EmbedContent(ctx, c.model, content,
		&genai.EmbedContentConfig{OutputDimensionality: &dimension, TaskType: "RETRIEVAL_DOCUMENT"})
}

func getContent(texts []string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		})
	}
	return contents
}

func isRateLimited(err error) bool {
	if s, ok := status.FromError(err); ok {
		return s.Code() == codes.ResourceExhausted
	}
	return false
}
