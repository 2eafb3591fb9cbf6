package game

import (
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
)

type ResultKind string

const (
	ResultCheckmate         ResultKind = "checkmate"
	ResultStalemate         ResultKind = "stalemate"
	ResultDraw              ResultKind = "draw"
	ResultTimeForfeit       ResultKind = "time_forfeit"
	ResultEngineUnavailable ResultKind = "engine_unavailable"
	ResultAbandoned         ResultKind = "abandoned"
)

// Result is the terminal outcome of a session.
type Result struct {
	Kind   ResultKind
	Winner nchess.Color
	// Side is the side the result is about: the flagged side on a time
	// forfeit, the failing engine's side, or the side that abandoned.
	Side   nchess.Color
	Method nchess.Method
	Detail string
}

// Score renders the PGN result token.
func (r Result) Score() string {
	switch r.Winner {
	case nchess.White:
		return "1-0"
	case nchess.Black:
		return "0-1"
	}
	switch r.Kind {
	case ResultStalemate, ResultDraw:
		return "1/2-1/2"
	}
	return "*"
}

func (r Result) Decisive() bool { return r.Winner == nchess.White || r.Winner == nchess.Black }

func resultFromPosition(pos *board.Position) (Result, bool) {
	if !pos.IsGameOver() {
		return Result{}, false
	}
	switch {
	case pos.IsCheckmate():
		winner := pos.Winner()
		return Result{Kind: ResultCheckmate, Winner: winner, Side: winner.Other(), Method: nchess.Checkmate}, true
	case pos.IsStalemate():
		return Result{Kind: ResultStalemate, Winner: nchess.NoColor, Side: pos.Turn(), Method: nchess.Stalemate}, true
	default:
		return Result{Kind: ResultDraw, Winner: pos.Winner(), Method: pos.Method(), Detail: methodName(pos.Method())}, true
	}
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Resignation:
		return "resignation"
	case nchess.DrawOffer:
		return "draw_offer"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return ""
	}
}

// ColorName is the lowercase side name used in snapshots and logs.
func ColorName(c nchess.Color) string {
	switch c {
	case nchess.White:
		return "white"
	case nchess.Black:
		return "black"
	default:
		return ""
	}
}

func ParseColor(text string) (nchess.Color, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "white", "w":
		return nchess.White, true
	case "black", "b":
		return nchess.Black, true
	default:
		return nchess.NoColor, false
	}
}
