package textExtract

import (
	"context"
	"fmt"

	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
	"github.com/kvallam/MedVaultAPI/pkg/logger_i"
)

// Extractor is the text-extraction capability: document bytes plus mime type
// in, plain text out. Unsupported mime types fail loudly instead of returning
// empty text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Recognizer turns an image into text (OCR). Optional: when absent, image
// records fail with a capability error rather than silently producing
// nothing.
type Recognizer interface {
	Recognize(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Router dispatches on mime type: pdf and the text family are handled
// locally, images go through the recognizer.
type Router struct {
	recognizer Recognizer
	logger     *logger_i.Logger
}

func NewRouter(recognizer Recognizer) *Router {
	return &Router{
		recognizer: recognizer,
		logger:     logger_i.NewLogger("TextExtract"),
	}
}

func (r *Router) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	switch mimeType {
	case "application/pdf":
		return r.extractPDF(ctx, data)

	case "text/plain", "application/rtf",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return extractTextFamily(data, mimeType)

	case "image/png", "image/jpeg", "image/tiff":
		if r.recognizer == nil {
			return "", faults.Unavailable("image recognition", errNoRecognizer)
		}
		return r.recognizer.Recognize(ctx, data, mimeType)

	default:
		return "", fmt.Errorf("mime type %q: %w", mimeType, faults.ErrUnsupportedMedia)
	}
}

// CanRecognizeImages reports whether an OCR capability is wired, for health
// snapshots.
func (r *Router) CanRecognizeImages() bool {
	return r.recognizer != nil
}
