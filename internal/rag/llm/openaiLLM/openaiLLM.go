package openaiLLM

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/kvallam/MedVaultAPI/internal/config"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

var errNoChoices = errors.New("provider returned no choices")

type Provider struct {
	client openai.Client
	model  string
	logger *logger_i.Logger
}

func NewProvider(client openai.Client, model string) *Provider {
	return &Provider{
		client: client,
		model:  model,
		logger: logger_i.NewLogger("llm_openai"),
	}
}

func (p *Provider) Generate(ctx context.Context, question string, contextChunks []string) (string, error) {
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s",
		strings.Join(contextChunks, "\n\n"), question)

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(config.AskSystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		p.logger.Error("completion failed", "error", err)
		return "", faults.Unavailable("completion provider", err)
	}
	if len(resp.Choices) == 0 {
		return "", faults.Unavailable("completion provider", errNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}
