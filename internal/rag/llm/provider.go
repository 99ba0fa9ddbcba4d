package llm

import "context"

// Provider is the completion capability: a question plus the context chunks
// selected by the retrieval stage, answer text out.
type Provider interface {
	Generate(ctx context.Context, question string, contextChunks []string) (string, error)
}
