package knowledge

import "strings"

const (
	chunkSize    = 800
	chunkOverlap = 120
)

// ChunkText splits text into rune windows of size chunkSize with
// chunkOverlap runes carried between neighbours. Whitespace-only windows
// are dropped. A degenerate size/overlap pair yields the text unsplit.
func ChunkText(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 || size <= overlap {
		return []string{text}
	}

	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		slice := string(runes[start:end])
		if strings.TrimSpace(slice) != "" {
			chunks = append(chunks, slice)
		}
		if end == len(runes) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
