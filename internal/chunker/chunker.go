package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docuquery/internal/service"
)

// Piece is one fixed-size segment of extracted document text. Ordinals are
// assigned by output position and are contiguous across all blocks of a
// document, so citation ordering is stable regardless of how embedding
// completes later.
type Piece struct {
	Ordinal   int
	Block     int // index of the source text block
	Text      string
	CharStart int // document-global rune offset (blocks separated by one rune)
	CharEnd   int
}

// Split splits ordered text blocks into overlapping fixed-size pieces.
// Sizes are measured in runes. Window starts advance by size-overlap until
// they pass the end of the block, so each block ends with a remainder window
// that may be shorter than size; no padding is applied. Empty input yields an
// empty slice, not an error: a zero-chunk document is valid.
func Split(blocks []string, size, overlap int) ([]Piece, error) {
	if size <= 0 {
		return nil, &service.ValidationError{Field: "chunk_size", Message: fmt.Sprintf("must be greater than 0, got %d", size)}
	}
	if overlap < 0 || overlap >= size {
		return nil, &service.ValidationError{Field: "chunk_overlap", Message: fmt.Sprintf("must satisfy 0 <= overlap < size, got %d/%d", overlap, size)}
	}

	pieces := []Piece{}
	ordinal := 0
	step := size - overlap
	base := 0 // running document-global offset

	for blockIdx, block := range blocks {
		runes := []rune(block)

		if strings.TrimSpace(block) == "" {
			base += len(runes) + 1
			continue
		}

		for start := 0; start < len(runes); start += step {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}

			text := string(runes[start:end])
			if strings.TrimSpace(text) == "" {
				continue
			}

			pieces = append(pieces, Piece{
				Ordinal:   ordinal,
				Block:     blockIdx,
				Text:      text,
				CharStart: base + start,
				CharEnd:   base + end,
			})
			ordinal++
		}

		base += len(runes) + 1
	}

	return pieces, nil
}

// Runes reports the rune length of a piece's text.
func (p Piece) Runes() int {
	return utf8.RuneCountInString(p.Text)
}
