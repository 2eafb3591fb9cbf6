// Package book answers opening moves from a polyglot book so engine games
// do not all start the same way.
package book

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
)

// DefaultMaxPly is used when a book is opened without a ply limit.
const DefaultMaxPly = 8

var ErrPathRequired = errors.New("polyglot book path required")

// Book is safe for concurrent Probe calls.
type Book struct {
	entries *nchess.PolyglotBook
	maxPly  int
	hasher  *nchess.ZobristHasher

	mu  sync.Mutex
	rng *rand.Rand
}

// Open loads a polyglot file.
func Open(path string, maxPly int, seed int64) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer f.Close()
	b, err := Load(f, maxPly, seed)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return b, nil
}

func Load(r io.Reader, maxPly int, seed int64) (*Book, error) {
	entries, err := nchess.LoadFromReader(r)
	if err != nil {
		return nil, err
	}
	if maxPly <= 0 {
		maxPly = DefaultMaxPly
	}
	return &Book{
		entries: entries,
		maxPly:  maxPly,
		hasher:  nchess.NewZobristHasher(),
		rng:     rand.New(rand.NewSource(seed)),
	}, nil
}

func (b *Book) MaxPly() int { return b.maxPly }

// Probe picks a weighted book move for pos. ok is false past the ply limit,
// for unknown positions and when no listed move is legal.
func (b *Book) Probe(pos *board.Position) (mv board.Move, ok bool, err error) {
	if b == nil || pos.Ply() >= b.maxPly {
		return board.Move{}, false, nil
	}
	hash, err := b.hasher.HashPosition(pos.FEN())
	if err != nil {
		return board.Move{}, false, fmt.Errorf("polyglot hash: %w", err)
	}

	var (
		moves   []board.Move
		weights []int
		total   int
	)
	for _, e := range b.entries.FindMoves(nchess.ZobristHashToUint64(hash)) {
		if e.Weight == 0 {
			continue
		}
		decoded := nchess.DecodeMove(e.Move).ToMove()
		cand, err := board.ParseMove(decoded.String())
		if err != nil || !pos.IsLegal(cand) {
			continue
		}
		moves = append(moves, cand)
		weights = append(weights, int(e.Weight))
		total += int(e.Weight)
	}
	if total == 0 {
		return board.Move{}, false, nil
	}

	b.mu.Lock()
	pick := b.rng.Intn(total)
	b.mu.Unlock()
	for i, w := range weights {
		if pick < w {
			return moves[i], true, nil
		}
		pick -= w
	}
	return moves[len(moves)-1], true, nil
}
