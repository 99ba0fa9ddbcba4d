package gemini

import (
	"fmt"
	"strings"

	"context"

	"google.golang.org/genai"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

type llmClient struct {
	client *genai.Client
	model  string
	logger *logger_i.Logger
}

// NewProvider wraps an existing genai client; the caller owns its lifetime.
func NewProvider(client *genai.Client, model string) *llmClient {
	return &llmClient{
		client: client,
		model:  model,
		logger: logger_i.NewLogger("llm_gemini"),
	}
}

func (c *llmClient) Generate(ctx context.Context, question string, contextChunks []string) (string, error) {
	systemInstruction := &genai.Content{
		Parts: []*genai.Part{
			{Text: config.AskSystemPrompt},
		},
	}

	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
		strings.Join(contextChunks, "\n\n"), question)

	result, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{SystemInstruction: systemInstruction},
	)
	if err != nil {
		c.logger.Error("completion failed", "error", err)
		return "", faults.Unavailable("completion provider", err)
	}
	return result.Text(), nil
}
