package board

import (
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// Position is a board state plus the moves played to reach it. Legality and
// game-over detection are delegated to the corentings/chess oracle; the only
// mutation paths are Apply and Complete.
type Position struct {
	game     *nchess.Game
	startFEN string
	eco      ecoLookup
}

// ecoBook is parsed once per process; lookups only read it.
var ecoBook = sync.OnceValue(opening.NewBookECO)

// ecoLookup caches the opening found for the move list of length ply.
type ecoLookup struct {
	ply         int
	done        bool
	code, title string
}

// CaptureOutcome describes what a single applied move removed from the board.
type CaptureOutcome struct {
	Captured  bool
	Piece     nchess.Piece
	Square    nchess.Square
	EnPassant bool
	By        nchess.Color
}

// Staged is the first half of the two-phase promotion commit.
type Staged struct {
	Move           Move
	NeedsPromotion bool
	Choices        []nchess.PieceType
}

func NewPosition() *Position {
	return &Position{game: nchess.NewGame()}
}

// FromFEN starts a position from fen. An empty fen means the standard start.
func FromFEN(fen string) (*Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		return NewPosition(), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	return &Position{game: nchess.NewGame(opt), startFEN: fen}, nil
}

// Clone returns a structural copy that shares no mutable state with p.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{game: p.game.Clone(), startFEN: p.startFEN, eco: p.eco}
}

func (p *Position) Turn() nchess.Color { return p.game.Position().Turn() }

func (p *Position) FEN() string { return p.game.FEN() }

func (p *Position) StartFEN() string { return p.startFEN }

func (p *Position) Ply() int { return len(p.game.Moves()) }

func (p *Position) PieceAt(sq nchess.Square) nchess.Piece {
	return p.game.Position().Board().Piece(sq)
}

// Placement returns the 64 squares indexed a1..h8.
func (p *Position) Placement() [64]nchess.Piece {
	var out [64]nchess.Piece
	b := p.game.Position().Board()
	for file := nchess.FileA; file <= nchess.FileH; file++ {
		for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
			sq := nchess.NewSquare(file, rank)
			out[sq] = b.Piece(sq)
		}
	}
	return out
}

func (p *Position) LegalMoves() []Move {
	valid := p.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		out = append(out, fromLibrary(&valid[i]))
	}
	return out
}

func (p *Position) LegalMovesFrom(sq nchess.Square) []Move {
	valid := p.game.ValidMoves()
	var out []Move
	for i := range valid {
		if valid[i].S1() == sq {
			out = append(out, fromLibrary(&valid[i]))
		}
	}
	return out
}

func (p *Position) IsLegal(m Move) bool {
	_, ok := p.lookup(m)
	return ok
}

// Stage checks m against the oracle without touching the board. A pawn
// reaching its last rank without a promotion kind comes back with
// NeedsPromotion set and the legal choices listed.
func (p *Position) Stage(m Move) (Staged, error) {
	var choices []nchess.PieceType
	exact := false
	valid := p.game.ValidMoves()
	for i := range valid {
		v := &valid[i]
		if !m.sameSquares(v) {
			continue
		}
		if v.Promo() != nchess.NoPieceType {
			choices = append(choices, v.Promo())
		}
		if v.Promo() == m.Promotion {
			exact = true
		}
	}
	switch {
	case exact:
		return Staged{Move: m}, nil
	case len(choices) > 0 && m.Promotion == nchess.NoPieceType:
		return Staged{Move: m, NeedsPromotion: true, Choices: orderChoices(choices)}, nil
	default:
		return Staged{}, &IllegalMoveError{Move: m, FEN: p.FEN()}
	}
}

// Complete attaches kind to a staged promotion and applies it.
func (p *Position) Complete(m Move, kind nchess.PieceType) (CaptureOutcome, error) {
	return p.Apply(m.WithPromotion(kind))
}

// Apply plays m. The captured square is resolved against the pre-move board
// so that en passant reports the passed pawn rather than the empty
// destination.
func (p *Position) Apply(m Move) (CaptureOutcome, error) {
	v, ok := p.lookup(m)
	if !ok {
		if m.Promotion == nchess.NoPieceType {
			if staged, err := p.Stage(m); err == nil && staged.NeedsPromotion {
				return CaptureOutcome{}, fmt.Errorf("%w: %s", ErrPromotionRequired, m)
			}
		}
		return CaptureOutcome{}, &IllegalMoveError{Move: m, FEN: p.FEN()}
	}
	outcome := p.resolveCapture(v)
	if err := p.game.Move(v, nil); err != nil {
		return CaptureOutcome{}, fmt.Errorf("apply %s: %w", m, err)
	}
	return outcome, nil
}

func (p *Position) lookup(m Move) (*nchess.Move, bool) {
	valid := p.game.ValidMoves()
	for i := range valid {
		if m.sameSquares(&valid[i]) && valid[i].Promo() == m.Promotion {
			mv := valid[i]
			return &mv, true
		}
	}
	return nil, false
}

func (p *Position) resolveCapture(v *nchess.Move) CaptureOutcome {
	pos := p.game.Position()
	b := pos.Board()
	mover := pos.Turn()
	target := v.S2()
	enPassant := v.HasTag(nchess.EnPassant)
	if !enPassant && b.Piece(target) == nchess.NoPiece &&
		b.Piece(v.S1()).Type() == nchess.Pawn && v.S1().File() != v.S2().File() {
		enPassant = true
	}
	if enPassant {
		target = passedPawnSquare(v.S2(), mover)
	}
	victim := b.Piece(target)
	if victim == nchess.NoPiece {
		return CaptureOutcome{}
	}
	return CaptureOutcome{
		Captured:  true,
		Piece:     victim,
		Square:    target,
		EnPassant: enPassant,
		By:        mover,
	}
}

// passedPawnSquare is the square one rank behind dest from the mover's view.
func passedPawnSquare(dest nchess.Square, mover nchess.Color) nchess.Square {
	if mover == nchess.White {
		return nchess.NewSquare(dest.File(), dest.Rank()-1)
	}
	return nchess.NewSquare(dest.File(), dest.Rank()+1)
}

func (p *Position) IsCheckmate() bool { return p.game.Method() == nchess.Checkmate }

func (p *Position) IsStalemate() bool { return p.game.Method() == nchess.Stalemate }

// IsDrawn reports a draw by any rule other than stalemate.
func (p *Position) IsDrawn() bool {
	return p.game.Outcome() == nchess.Draw && p.game.Method() != nchess.Stalemate
}

func (p *Position) IsGameOver() bool { return p.game.Outcome() != nchess.NoOutcome }

func (p *Position) Outcome() nchess.Outcome { return p.game.Outcome() }

func (p *Position) Method() nchess.Method { return p.game.Method() }

func (p *Position) InCheck() bool {
	moves := p.game.Moves()
	if len(moves) == 0 {
		return false
	}
	return moves[len(moves)-1].HasTag(nchess.Check)
}

func (p *Position) LastMove() (Move, bool) {
	moves := p.game.Moves()
	if len(moves) == 0 {
		return Move{}, false
	}
	return fromLibrary(moves[len(moves)-1]), true
}

func (p *Position) MovesUCI() []string {
	moves := p.game.Moves()
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, fromLibrary(mv).String())
	}
	return out
}

func (p *Position) MovesSAN() []string {
	moves := p.game.Moves()
	positions := p.game.Positions()
	notation := nchess.AlgebraicNotation{}
	out := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		out = append(out, notation.Encode(positions[i], mv))
	}
	return out
}

// PGN renders the game with the given tag pairs on a copy of the game.
func (p *Position) PGN(tags map[string]string) string {
	g := p.game.Clone()
	for k, v := range tags {
		g.AddTagPair(k, v)
	}
	return g.String()
}

// OpeningName looks the move list up in the ECO book. Empty when unknown.
// The answer is cached until the next move.
func (p *Position) OpeningName() (code, title string) {
	moves := p.game.Moves()
	if p.startFEN != "" || len(moves) == 0 {
		return "", ""
	}
	if p.eco.done && p.eco.ply == len(moves) {
		return p.eco.code, p.eco.title
	}
	p.eco = ecoLookup{ply: len(moves), done: true}
	if eco := ecoBook().Find(moves); eco != nil {
		p.eco.code, p.eco.title = eco.Code(), eco.Title()
	}
	return p.eco.code, p.eco.title
}

// Winner is the side credited by the oracle's outcome, or NoColor.
func (p *Position) Winner() nchess.Color {
	switch p.game.Outcome() {
	case nchess.WhiteWon:
		return nchess.White
	case nchess.BlackWon:
		return nchess.Black
	default:
		return nchess.NoColor
	}
}

func orderChoices(kinds []nchess.PieceType) []nchess.PieceType {
	order := []nchess.PieceType{nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight}
	out := make([]nchess.PieceType, 0, len(kinds))
	for _, want := range order {
		for _, k := range kinds {
			if k == want {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
