package textExtract

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

const recognizePrompt = "Transcribe all text visible in this medical document image. " +
	"Output only the transcribed text, preserving line breaks. " +
	"If the image contains no readable text, output nothing."

// GeminiRecognizer reads text out of scanned documents and photos with a
// multimodal Gemini call.
type GeminiRecognizer struct {
	client *genai.Client
	model  string
	logger *logger_i.Logger
}

func NewGeminiRecognizer(client *genai.Client, model string) *GeminiRecognizer {
	return &GeminiRecognizer{
		client: client,
		model:  model,
		logger: logger_i.NewLogger("ImageRecognizer"),
	}
}

func (g *GeminiRecognizer) Recognize(ctx context.Context, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: recognizePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			},
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		g.logger.Error("image recognition failed", "error", err)
		return "", faults.Unavailable("image recognition", err)
	}
	return strings.TrimSpace(result.Text()), nil
}
