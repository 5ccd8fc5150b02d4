package pipeline

import (
	"regexp"
	"strings"
)

// Chunking defaults for the embed stage.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// ChunkText splits text into overlapping windows of size bytes advancing by
// size−overlap. Chunks are trimmed and empties dropped. A size not greater
// than the overlap would never advance, so the whole text comes back as one
// chunk instead.
func ChunkText(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= overlap {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	stride := size - overlap
	var chunks []string
	for start := 0; start < len(text); start += stride {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(text) {
			break
		}
	}
	return chunks
}

// chunkSanitizer matches every character outside the embedding-safe set.
var chunkSanitizer = regexp.MustCompile("[^a-zA-Z0-9 \t\n\r.,;:!?@#$%^&*()_+\\-=\\[\\]{}|'\"<>/`~]")

// SanitizeChunk strips characters the embedding providers choke on.
func SanitizeChunk(chunk string) string {
	return chunkSanitizer.ReplaceAllString(chunk, "")
}
