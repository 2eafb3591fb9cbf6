package chess

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/internal/chess/book"
	"github.com/park285/cheese-arena/internal/chess/uci"
)

const fakeEngineEnv = "ARENA_FAKE_ENGINE"

func TestMain(m *testing.M) {
	if os.Getenv(fakeEngineEnv) != "" {
		runFirstLegalEngine()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runFirstLegalEngine answers every search with the first legal move of the
// requested position.
func runFirstLegalEngine() {
	in := bufio.NewScanner(os.Stdin)
	pos := board.NewPosition()
	for in.Scan() {
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			fmt.Println("uciok")
		case "isready":
			fmt.Println("readyok")
		case "position":
			pos = board.NewPosition()
			rest := fields[1:]
			if len(rest) > 0 && rest[0] == "fen" {
				end := len(rest)
				for i, f := range rest {
					if f == "moves" {
						end = i
						break
					}
				}
				pos, _ = board.FromFEN(strings.Join(rest[1:end], " "))
				rest = rest[end:]
			}
			for i, f := range rest {
				if f != "moves" {
					continue
				}
				for _, text := range rest[i+1:] {
					_, _ = pos.Apply(board.MustParseMove(text))
				}
				break
			}
		case "go":
			legal := pos.LegalMoves()
			if len(legal) == 0 {
				fmt.Println("bestmove (none)")
				continue
			}
			fmt.Printf("info depth 1 score cp 0 pv %s\n", legal[0])
			fmt.Printf("bestmove %s\n", legal[0])
		case "quit":
			return
		}
	}
}

func newFakeEngine(t *testing.T, mode ProcessMode) *Engine {
	t.Helper()
	t.Setenv(fakeEngineEnv, "1")
	e, err := NewEngine(EngineConfig{Name: "fake", BinaryPath: os.Args[0], Mode: mode}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestComputeMoveIsLegal(t *testing.T) {
	for _, mode := range []ProcessMode{PerCall, PerGame} {
		e := newFakeEngine(t, mode)
		pos := board.NewPosition()
		for i := 0; i < 4; i++ {
			mv, err := e.ComputeMove(context.Background(), pos, 20*time.Millisecond)
			if err != nil {
				t.Fatalf("%s ComputeMove ply %d: %v", mode, i, err)
			}
			if _, err := pos.Apply(mv); err != nil {
				t.Fatalf("%s engine move %s rejected: %v", mode, mv, err)
			}
		}
		if pos.Ply() != 4 {
			t.Fatalf("%s ply = %d", mode, pos.Ply())
		}
	}
}

func TestComputeMoveFromFEN(t *testing.T) {
	e := newFakeEngine(t, PerCall)
	pos, err := board.FromFEN("8/P7/8/8/8/8/8/k1K5 w - - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	mv, err := e.ComputeMove(context.Background(), pos, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ComputeMove: %v", err)
	}
	if !pos.IsLegal(mv) {
		t.Fatalf("move %s not legal in %s", mv, pos.FEN())
	}
}

func TestBookMoveSkipsSearch(t *testing.T) {
	hash, err := nchess.NewZobristHasher().HashPosition(board.NewPosition().FEN())
	if err != nil {
		t.Fatalf("HashPosition: %v", err)
	}
	h2h4 := board.MustParseMove("h2h4")
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, nchess.ZobristHashToUint64(hash))
	_ = binary.Write(&buf, binary.BigEndian, uint16(h2h4.From)<<6|uint16(h2h4.To))
	_ = binary.Write(&buf, binary.BigEndian, uint16(1))
	_ = binary.Write(&buf, binary.BigEndian, uint32(0))
	openings, err := book.Load(&buf, 2, 1)
	if err != nil {
		t.Fatalf("book.Load: %v", err)
	}

	// "true" never answers uci, so any search would fail.
	e, err := NewEngine(EngineConfig{Name: "booked", BinaryPath: "true", Book: openings}, nil)
	if err != nil {
		t.Skipf("no true binary: %v", err)
	}
	mv, err := e.ComputeMove(context.Background(), board.NewPosition(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ComputeMove: %v", err)
	}
	if mv != h2h4 {
		t.Fatalf("move = %s, want book move h2h4", mv)
	}
}

func TestNewEngineValidation(t *testing.T) {
	if _, err := NewEngine(EngineConfig{}, nil); !errors.Is(err, ErrBinaryRequired) {
		t.Fatalf("empty binary: %v", err)
	}
	if _, err := NewEngine(EngineConfig{BinaryPath: os.Args[0], Mode: "forever"}, nil); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("bad mode: %v", err)
	}
	if _, err := NewEngine(EngineConfig{BinaryPath: "/nonexistent/engine"}, nil); err == nil {
		t.Fatalf("missing binary accepted")
	}
}

func TestLimitsForBudget(t *testing.T) {
	if got, err := uci.GoCommand(LimitsForBudget(time.Second)); err != nil || got != "go movetime 1000" {
		t.Fatalf("got %q, %v", got, err)
	}
	if got := LimitsForBudget(0).MoveTimeMillis; got != 10 {
		t.Fatalf("floor = %d", got)
	}
}
