package processor

import (
	"iter"
	"slices"
	"strings"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	// OCRChunkSize is used for pages recovered by OCR during ingestion
	OCRChunkSize = 400
)

// Chunk splits text into windows of size runes, each starting size-overlap
// runes after the previous one. Windows are trimmed and empty ones skipped;
// the last window may be shorter than size.
//
// Callers must pass size > overlap >= 0. Anything else yields nothing.
func Chunk(text string, size, overlap int) iter.Seq[string] {
	return func(yield func(string) bool) {
		stride := size - overlap
		if size <= 0 || overlap < 0 || stride <= 0 {
			return
		}

		runes := []rune(text)
		for start := 0; start < len(runes); start += stride {
			end := min(start+size, len(runes))
			piece := strings.TrimSpace(string(runes[start:end]))
			if piece == "" {
				continue
			}
			if !yield(piece) {
				return
			}
		}
	}
}

// Chunks collects Chunk into a slice.
func Chunks(text string, size, overlap int) []string {
	return slices.Collect(Chunk(text, size, overlap))
}
