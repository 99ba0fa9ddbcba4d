package insight

import "strings"

// Separators tried best to worst; a part one separator cannot shrink below
// the limit is split again on the next one down.
var chunkSeparators = []string{"\n\n", "\n", ". ", " "}

// splitTextIntoChunks breaks text into spans of roughly limit characters,
// carrying the last overlap characters into the next span so semantic
// continuity survives the cut. No span exceeds limit plus a small overlap
// allowance.
func splitTextIntoChunks(text string, limit int, overlap int) []string {
	return splitBySeparators(text, limit, overlap, chunkSeparators)
}

func splitBySeparators(text string, limit int, overlap int, separators []string) []string {
	if len(text) <= limit {
		return []string{text}
	}
	if len(separators) == 0 {
		return hardCut(text, limit, overlap)
	}
	splitChar := separators[0]
	if !strings.Contains(text, splitChar) {
		return splitBySeparators(text, limit, overlap, separators[1:])
	}

	parts := strings.Split(text, splitChar)

	// A single part the limit cannot hold is split on the finer separators
	// first so the accumulation below only ever sees bounded pieces.
	var pieces []string
	for _, part := range parts {
		if len(part) > limit {
			pieces = append(pieces, splitBySeparators(part, limit, overlap, separators[1:])...)
		} else {
			pieces = append(pieces, part)
		}
	}

	var chunks []string
	var currentChunk strings.Builder

	for _, piece := range pieces {
		if currentChunk.Len()+len(piece)+len(splitChar) > limit {
			if currentChunk.Len() > 0 {
				chunks = append(chunks, currentChunk.String())
			}

			overlapContent := ""
			if currentChunk.Len() > overlap {
				overlapContent = currentChunk.String()[currentChunk.Len()-overlap:]
			}

			currentChunk.Reset()
			currentChunk.WriteString(overlapContent)
		}

		if currentChunk.Len() > 0 {
			currentChunk.WriteString(splitChar)
		}
		currentChunk.WriteString(piece)
	}

	if currentChunk.Len() > 0 {
		chunks = append(chunks, currentChunk.String())
	}

	return chunks
}

// hardCut slices separator-free text into limit-sized windows, stepping by
// limit minus overlap so adjacent windows share the overlap.
func hardCut(text string, limit int, overlap int) []string {
	step := limit - overlap
	if step <= 0 {
		step = limit
	}

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + limit
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
