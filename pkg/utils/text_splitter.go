package utils

import (
	"fmt"
	"unicode"
)

// TextSplitter splits document text into overlapping windows of at most
// ChunkSize characters. Consecutive chunks share ChunkOverlap characters.
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewTextSplitter validates 0 <= overlap < chunkSize.
func NewTextSplitter(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &TextSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// Split returns the chunks of text in document order. Every character of the
// input lands in at least one chunk and no chunk exceeds ChunkSize runes.
//
// A window that would cut a word prefers to end right after the last
// paragraph break, line break or whitespace inside it, as long as the cut
// still moves the window forward past the overlap.
func (s *TextSplitter) Split(text string) []string {
	runes := []rune(text)
	total := len(runes)
	if total == 0 {
		return []string{}
	}
	if total <= s.ChunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + s.ChunkSize
		if end >= total {
			chunks = append(chunks, string(runes[start:total]))
			break
		}

		end = s.boundary(runes, start, end)
		chunks = append(chunks, string(runes[start:end]))

		// end > start+overlap, so the next window always advances.
		start = end - s.ChunkOverlap
	}

	return chunks
}

// boundary picks the cut position for the window runes[start:end]. A cut is
// only taken from the second half of the window and always lands strictly
// after start+overlap.
func (s *TextSplitter) boundary(runes []rune, start, end int) int {
	minCut := start + s.ChunkOverlap + 1
	if half := start + s.ChunkSize/2; half > minCut {
		minCut = half
	}

	separators := []func(i int) bool{
		func(i int) bool { return runes[i] == '\n' && i > 0 && runes[i-1] == '\n' },
		func(i int) bool { return runes[i] == '\n' },
		func(i int) bool { return unicode.IsSpace(runes[i]) },
	}
	for _, isBreak := range separators {
		for i := end - 1; i+1 >= minCut; i-- {
			if isBreak(i) {
				return i + 1
			}
		}
	}
	return end
}

// SplitText is the one-shot form used by scripts and tests.
func SplitText(text string, chunkSize int, overlap int) []string {
	splitter, err := NewTextSplitter(chunkSize, overlap)
	if err != nil {
		return nil
	}
	return splitter.Split(text)
}
