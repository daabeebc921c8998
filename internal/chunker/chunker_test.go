package chunker

import (
	"errors"
	"strings"
	"testing"

	"docuquery/internal/service"
)

func TestSplit_Basic(t *testing.T) {
	pieces, err := Split([]string{"hello world"}, 100, 20)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 1 {
		t.Fatalf("Split() returned %d pieces, want 1", len(pieces))
	}
	if pieces[0].Text != "hello world" {
		t.Errorf("Split() text = %q, want %q", pieces[0].Text, "hello world")
	}
	if pieces[0].Ordinal != 0 {
		t.Errorf("Split() ordinal = %d, want 0", pieces[0].Ordinal)
	}
	if pieces[0].CharStart != 0 || pieces[0].CharEnd != 11 {
		t.Errorf("Split() span = [%d,%d), want [0,11)", pieces[0].CharStart, pieces[0].CharEnd)
	}
}

func TestSplit_OverlappingWindows(t *testing.T) {
	// Three blocks of 250 chars with size 100 and overlap 20 produce windows
	// stepping by 80 within each block.
	blocks := []string{
		strings.Repeat("a", 250),
		strings.Repeat("b", 250),
		strings.Repeat("c", 250),
	}

	pieces, err := Split(blocks, 100, 20)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	// Each block yields windows starting at offsets 0, 80, 160 and 240.
	wantCount := 12
	if len(pieces) != wantCount {
		t.Fatalf("Split() returned %d pieces, want %d", len(pieces), wantCount)
	}

	for i, piece := range pieces {
		if piece.Ordinal != i {
			t.Errorf("piece %d ordinal = %d, want %d", i, piece.Ordinal, i)
		}
	}

	// Adjacent windows within a block share exactly overlap runes.
	first := pieces[0].Text
	second := pieces[1].Text
	if first[len(first)-20:] != second[:20] {
		t.Error("adjacent windows should share the overlap region")
	}

	// Document-global offsets: second block starts after the first plus the
	// separator.
	if pieces[4].CharStart != 251 {
		t.Errorf("second block first window CharStart = %d, want 251", pieces[4].CharStart)
	}
}

func TestSplit_TrailingRemainderWindow(t *testing.T) {
	// A 250-rune block at size 100, overlap 20 has window starts at 0, 80,
	// 160 and 240: the last window carries the 10-rune remainder even though
	// the window before it already reached the end of the block.
	pieces, err := Split([]string{strings.Repeat("y", 250)}, 100, 20)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 4 {
		t.Fatalf("Split() returned %d pieces, want 4", len(pieces))
	}

	wantSpans := [][2]int{{0, 100}, {80, 180}, {160, 250}, {240, 250}}
	for i, piece := range pieces {
		if piece.Ordinal != i {
			t.Errorf("piece %d ordinal = %d, want %d", i, piece.Ordinal, i)
		}
		if piece.CharStart != wantSpans[i][0] || piece.CharEnd != wantSpans[i][1] {
			t.Errorf("piece %d span = [%d,%d), want [%d,%d)",
				i, piece.CharStart, piece.CharEnd, wantSpans[i][0], wantSpans[i][1])
		}
	}

	last := pieces[len(pieces)-1]
	if last.Runes() >= 100 {
		t.Errorf("last piece holds %d runes, want fewer than the window size", last.Runes())
	}
}

func TestSplit_ShortBlock(t *testing.T) {
	pieces, err := Split([]string{"tiny"}, 100, 20)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 1 || pieces[0].Text != "tiny" {
		t.Fatalf("Split() = %+v, want single piece %q", pieces, "tiny")
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	tests := []struct {
		name   string
		blocks []string
	}{
		{name: "nil blocks", blocks: nil},
		{name: "no blocks", blocks: []string{}},
		{name: "only empty blocks", blocks: []string{"", "   ", "\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pieces, err := Split(tt.blocks, 100, 20)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(pieces) != 0 {
				t.Errorf("Split() returned %d pieces, want 0", len(pieces))
			}
		})
	}
}

func TestSplit_SkippedBlocksKeepGlobalOffsets(t *testing.T) {
	pieces, err := Split([]string{"first", "", "third"}, 100, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("Split() returned %d pieces, want 2", len(pieces))
	}
	// "first" occupies [0,5), separator at 5, empty block at 6, separator at 6.
	if pieces[1].CharStart != 7 {
		t.Errorf("third block CharStart = %d, want 7", pieces[1].CharStart)
	}
	if pieces[1].Ordinal != 1 {
		t.Errorf("ordinals must stay contiguous across skipped blocks, got %d", pieces[1].Ordinal)
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	// Spans count runes, not bytes.
	pieces, err := Split([]string{"héllo wörld"}, 100, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if pieces[0].CharEnd != 11 {
		t.Errorf("CharEnd = %d, want 11 runes", pieces[0].CharEnd)
	}
}

func TestSplit_InvalidParameters(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "zero size", size: 0, overlap: 0},
		{name: "negative size", size: -1, overlap: 0},
		{name: "negative overlap", size: 100, overlap: -1},
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split([]string{"text"}, tt.size, tt.overlap)
			if !errors.Is(err, service.ErrInvalidInput) {
				t.Errorf("Split() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestSplit_LastWindowNeverEmpty(t *testing.T) {
	// 101 runes with size 100, overlap 0: the tail window holds 1 rune.
	pieces, err := Split([]string{strings.Repeat("x", 101)}, 100, 0)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(pieces) != 2 {
		t.Fatalf("Split() returned %d pieces, want 2", len(pieces))
	}
	if pieces[1].Text != "x" {
		t.Errorf("tail window = %q, want single rune", pieces[1].Text)
	}
}
