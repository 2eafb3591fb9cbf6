package game

import (
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// Snapshot builds the read-only presentation view. It copies everything, so
// the caller may hand it to other goroutines.
func (c *Controller) Snapshot(now time.Time) arenadto.Snapshot {
	snap := arenadto.Snapshot{
		At:          now,
		Placement:   placement(c.pos),
		FEN:         c.pos.FEN(),
		SideToMove:  ColorName(c.pos.Turn()),
		Orientation: ColorName(c.orientation),
		InCheck:     c.pos.InCheck(),
		Captured: arenadto.CapturedPieces{
			White: capturedDTO(c.ledger.Snapshot(nchess.White)),
			Black: capturedDTO(c.ledger.Snapshot(nchess.Black)),
		},
		Material: arenadto.MaterialScore{
			White: c.ledger.MaterialFor(nchess.White),
			Black: c.ledger.MaterialFor(nchess.Black),
		},
		Clocks: arenadto.Clocks{
			WhiteMillis: c.clock.Remaining(nchess.White).Milliseconds(),
			BlackMillis: c.clock.Remaining(nchess.Black).Milliseconds(),
			Active:      ColorName(c.clock.Active()),
			Running:     c.clock.State() == clock.Running,
			Untimed:     c.clock.Untimed(),
		},
		State:    c.phase.String(),
		MovesUCI: c.pos.MovesUCI(),
		MovesSAN: c.pos.MovesSAN(),
	}
	if snap.Clocks.WhiteMillis < 0 {
		snap.Clocks.WhiteMillis = 0
	}
	if snap.Clocks.BlackMillis < 0 {
		snap.Clocks.BlackMillis = 0
	}

	if c.hasSel {
		snap.Selected = board.SquareName(c.selected)
		seen := make(map[nchess.Square]bool)
		for _, mv := range c.pos.LegalMovesFrom(c.selected) {
			if seen[mv.To] {
				continue
			}
			seen[mv.To] = true
			snap.Targets = append(snap.Targets, board.SquareName(mv.To))
		}
	}
	if c.drag != nil {
		snap.Drag = &arenadto.DragPoint{X: c.drag.x, Y: c.drag.y}
	}
	if c.promotion != nil {
		staged, err := c.pos.Stage(*c.promotion)
		if err == nil {
			pp := &arenadto.PendingPromotion{
				From: board.SquareName(c.promotion.From),
				To:   board.SquareName(c.promotion.To),
			}
			for _, k := range staged.Choices {
				pp.Choices = append(pp.Choices, kindName(k))
			}
			snap.PendingPromotion = pp
		}
	}
	if last, ok := c.pos.LastMove(); ok {
		snap.LastMove = last.String()
	}
	if c.phase == GameOver {
		snap.Result = &arenadto.Result{
			Kind:   string(c.result.Kind),
			Winner: ColorName(c.result.Winner),
			Method: methodName(c.result.Method),
			Score:  c.result.Score(),
		}
	}
	if code, title := c.pos.OpeningName(); code != "" {
		snap.Opening = &arenadto.Opening{Code: code, Title: title}
	}
	for _, side := range []nchess.Color{nchess.White, nchess.Black} {
		ch, ok := engineOf(c.slot(side))
		if !ok {
			continue
		}
		if snap.Engines == nil {
			snap.Engines = make(map[string]arenadto.Engine, 2)
		}
		snap.Engines[ColorName(side)] = arenadto.Engine{
			Name:          ch.Name(),
			State:         ch.State().String(),
			PendingMillis: ch.PendingFor(now).Milliseconds(),
			Failures:      c.failures[side],
		}
	}
	return snap
}

func placement(pos *board.Position) []string {
	squares := pos.Placement()
	out := make([]string, len(squares))
	for i, p := range squares {
		out[i] = pieceLetter(p)
	}
	return out
}

func capturedDTO(in []board.CapturedPiece) []arenadto.Piece {
	out := make([]arenadto.Piece, 0, len(in))
	for _, cp := range in {
		out = append(out, arenadto.Piece{Kind: kindName(cp.Kind), Color: ColorName(cp.Color), Ply: cp.Ply})
	}
	return out
}

// pieceLetter is the FEN letter for p, uppercase for white, empty for none.
func pieceLetter(p nchess.Piece) string {
	if p == nchess.NoPiece {
		return ""
	}
	var letter string
	switch p.Type() {
	case nchess.King:
		letter = "k"
	case nchess.Queen:
		letter = "q"
	case nchess.Rook:
		letter = "r"
	case nchess.Bishop:
		letter = "b"
	case nchess.Knight:
		letter = "n"
	case nchess.Pawn:
		letter = "p"
	}
	if p.Color() == nchess.White {
		return strings.ToUpper(letter)
	}
	return letter
}

func kindName(k nchess.PieceType) string {
	switch k {
	case nchess.King:
		return "king"
	case nchess.Queen:
		return "queen"
	case nchess.Rook:
		return "rook"
	case nchess.Bishop:
		return "bishop"
	case nchess.Knight:
		return "knight"
	case nchess.Pawn:
		return "pawn"
	default:
		return ""
	}
}
