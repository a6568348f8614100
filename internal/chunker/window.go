package chunker

import (
	"strings"

	"safetyqa/internal/domain"
)

// Window cuts text into fixed-size character windows that overlap by a fixed
// number of characters. Sizes are counted in runes.
type Window struct {
	size    int
	overlap int
}

var _ domain.Chunker = (*Window)(nil)

// NewWindow returns a chunker with the given window size and overlap. A
// non-positive size defaults to 800; an overlap outside [0, size) is reset to 0.
func NewWindow(size, overlap int) *Window {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Window{size: size, overlap: overlap}
}

// Chunk returns the trimmed windows of text, skipping windows that are blank
// after trimming.
func (w *Window) Chunk(text string) []string {
	runes := []rune(text)
	step := w.size - w.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + w.size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
	}
	return chunks
}
