package insight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	chunks := splitTextIntoChunks("short note", 1000, 150)
	assert.Equal(t, []string{"short note"}, chunks)
}

func TestSplitRespectsLimit(t *testing.T) {
	text := strings.Repeat("sentence one. ", 300)
	limit, overlap := 200, 40

	chunks := splitTextIntoChunks(text, limit, overlap)
	assert.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), limit+overlap, "chunk %d too large", i)
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("a", 180)
	text := para + "\n\n" + para + "\n\n" + para

	chunks := splitTextIntoChunks(text, 200, 40)
	assert.GreaterOrEqual(t, len(chunks), 3)
	for _, chunk := range chunks {
		assert.Contains(t, chunk, "a")
	}
}

func TestSplitCarriesOverlap(t *testing.T) {
	text := strings.Repeat("word ", 400)
	limit, overlap := 100, 30

	chunks := splitTextIntoChunks(text, limit, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	tail := chunks[0][len(chunks[0])-overlap:]
	assert.True(t, strings.HasPrefix(chunks[1], tail),
		"second chunk should start with the tail of the first")
}

func TestSplitBoundsOversizedParagraph(t *testing.T) {
	// One paragraph far beyond the limit inside a text that does contain
	// paragraph breaks: the long part must be split on finer separators
	// instead of being emitted whole.
	long := strings.TrimSpace(strings.Repeat("lab value ", 120))
	text := long + "\n\n" + "Short closing paragraph."
	limit, overlap := 100, 20

	chunks := splitTextIntoChunks(text, limit, overlap)
	assert.Greater(t, len(chunks), 5)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), limit+2*overlap, "chunk %d too large", i)
	}
	assert.Contains(t, strings.Join(chunks, " "), "Short closing paragraph.")
}

func TestSplitUnbrokenTextFallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("x", 500)
	chunks := splitTextIntoChunks(text, 100, 20)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 100)
	}
}
