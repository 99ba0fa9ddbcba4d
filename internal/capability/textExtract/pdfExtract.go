package textExtract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dslipak/pdf"
	"github.com/kvallam/MedVaultAPI/internal/domain/faults"
)

var errNoRecognizer = errors.New("no recognizer configured")

func (r *Router) extractPDF(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		r.logger.Error("failed opening pdf", "error", err)
		return "", faults.Unavailable("pdf extraction", err)
	}

	var builder strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := guardedPageText(ctx, page)
		if err != nil {
			// One unreadable page should not lose the rest of the document.
			r.logger.Warn("skipping unreadable pdf page", "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(content)
	}
	return builder.String(), nil
}

// guardedPageText runs the page parser behind a timeout; malformed pages can
// hang the parser indefinitely.
func guardedPageText(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	select {
	case r := <-resChan:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(10 * time.Second):
		return "", errors.New("page parse timeout")
	}
}
