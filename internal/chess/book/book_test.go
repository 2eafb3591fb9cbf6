package book

import (
	"bytes"
	"encoding/binary"
	"testing"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
)

type entry struct {
	move   uint16
	weight uint16
}

// polyglotMove packs from/to squares the way polyglot files store them.
func polyglotMove(t *testing.T, uci string) uint16 {
	t.Helper()
	mv, err := board.ParseMove(uci)
	if err != nil {
		t.Fatalf("ParseMove(%q): %v", uci, err)
	}
	from, to := uint16(mv.From), uint16(mv.To)
	return from<<6 | to
}

func startKey(t *testing.T) uint64 {
	t.Helper()
	hash, err := nchess.NewZobristHasher().HashPosition(board.NewPosition().FEN())
	if err != nil {
		t.Fatalf("HashPosition: %v", err)
	}
	return nchess.ZobristHashToUint64(hash)
}

func buildBook(t *testing.T, key uint64, entries []entry, maxPly int) *Book {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&buf, binary.BigEndian, key)
		_ = binary.Write(&buf, binary.BigEndian, e.move)
		_ = binary.Write(&buf, binary.BigEndian, e.weight)
		_ = binary.Write(&buf, binary.BigEndian, uint32(0))
	}
	b, err := Load(&buf, maxPly, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestProbeWeightedLegalMoves(t *testing.T) {
	b := buildBook(t, startKey(t), []entry{
		{polyglotMove(t, "d2d4"), 1},
		{polyglotMove(t, "e2e4"), 3},
		{polyglotMove(t, "e2e5"), 50},
		{polyglotMove(t, "g1f3"), 0},
	}, 4)

	seen := map[string]int{}
	pos := board.NewPosition()
	for i := 0; i < 200; i++ {
		mv, ok, err := b.Probe(pos)
		if err != nil || !ok {
			t.Fatalf("Probe = %v %v %v", mv, ok, err)
		}
		seen[mv.String()]++
	}
	if len(seen) != 2 || seen["e2e4"] == 0 || seen["d2d4"] == 0 {
		t.Fatalf("unexpected book picks %v", seen)
	}
	if seen["e2e4"] < seen["d2d4"] {
		t.Fatalf("weights ignored: %v", seen)
	}
}

func TestProbeOutOfBook(t *testing.T) {
	b := buildBook(t, startKey(t), []entry{{polyglotMove(t, "e2e4"), 1}}, 1)

	pos := board.NewPosition()
	if _, err := pos.Apply(board.MustParseMove("e2e4")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok, err := b.Probe(pos); ok || err != nil {
		t.Fatalf("past the ply limit: ok=%v err=%v", ok, err)
	}

	deep := buildBook(t, startKey(t), []entry{{polyglotMove(t, "e2e4"), 1}}, 10)
	if _, ok, _ := deep.Probe(pos); ok {
		t.Fatalf("position after 1. e4 is not in the book")
	}

	var nilBook *Book
	if _, ok, err := nilBook.Probe(pos); ok || err != nil {
		t.Fatalf("nil book: ok=%v err=%v", ok, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" ", 0, 1); err != ErrPathRequired {
		t.Fatalf("Open = %v", err)
	}
	if _, err := Open(t.TempDir()+"/missing.bin", 0, 1); err == nil {
		t.Fatalf("missing file accepted")
	}
}
