package game

import (
	"fmt"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// humanTurn returns the side to move when it may take input right now.
func (c *Controller) humanTurn() (nchess.Color, error) {
	if !c.started {
		return nchess.NoColor, ErrNotStarted
	}
	switch c.phase {
	case GameOver:
		return nchess.NoColor, ErrGameOver
	case Paused:
		return nchess.NoColor, ErrPaused
	case EnginePending:
		return nchess.NoColor, ErrNotYourTurn
	}
	side := c.pos.Turn()
	if _, ok := c.slot(side).(HumanSlot); !ok {
		return nchess.NoColor, ErrNotYourTurn
	}
	return side, nil
}

// Select handles a click on sq: pick up an own piece, move the selected
// piece to sq when that is one of its targets, or clear the selection.
func (c *Controller) Select(sq nchess.Square, now time.Time) error {
	side, err := c.humanTurn()
	if err != nil {
		return err
	}
	if c.promotion != nil {
		return ErrPromotionPending
	}
	if c.hasSel && sq != c.selected && c.isTarget(sq) {
		return c.tryMove(side, c.selected, sq, now)
	}
	piece := c.pos.PieceAt(sq)
	if piece != nchess.NoPiece && piece.Color() == side {
		c.selected, c.hasSel = sq, true
		c.drag = nil
		return nil
	}
	c.clearSelection()
	return nil
}

// DragUpdate tracks the pointer while a selected piece is dragged. Ignored
// when drag mode is off or nothing is selected.
func (c *Controller) DragUpdate(x, y float64) error {
	if _, err := c.humanTurn(); err != nil {
		return err
	}
	if !c.dragEnabled || !c.hasSel {
		return nil
	}
	c.drag = &dragPoint{x: x, y: y}
	return nil
}

// Drop finishes a gesture on sq. Dropping back on the origin square keeps
// the piece selected.
func (c *Controller) Drop(sq nchess.Square, now time.Time) error {
	side, err := c.humanTurn()
	if err != nil {
		return err
	}
	if c.promotion != nil {
		return ErrPromotionPending
	}
	if !c.hasSel {
		return nil
	}
	c.drag = nil
	if sq == c.selected {
		return nil
	}
	return c.tryMove(side, c.selected, sq, now)
}

// ChoosePromotion completes a staged promotion with kind. A kind the oracle
// rejects leaves the promotion pending.
func (c *Controller) ChoosePromotion(kind nchess.PieceType, now time.Time) error {
	side, err := c.humanTurn()
	if err != nil {
		return err
	}
	if c.promotion == nil {
		return ErrNoPromotion
	}
	mv := c.promotion.WithPromotion(kind)
	if !c.pos.IsLegal(mv) {
		return &board.IllegalMoveError{Move: mv, FEN: c.pos.FEN()}
	}
	c.promotion = nil
	return c.commitHuman(side, mv, now)
}

func (c *Controller) CancelPromotion() {
	c.promotion = nil
}

func (c *Controller) tryMove(side nchess.Color, from, to nchess.Square, now time.Time) error {
	mv := board.Move{From: from, To: to, Promotion: nchess.NoPieceType}
	staged, err := c.pos.Stage(mv)
	if err != nil {
		c.clearSelection()
		c.logger.Debug("move_rejected", zap.String("uci", mv.String()), zap.Error(err))
		c.emit(Event{Kind: EventRejected, At: now, Side: side, Move: mv, Err: err})
		return err
	}
	if staged.NeedsPromotion {
		c.hasSel = false
		c.drag = nil
		c.promotion = &mv
		return nil
	}
	return c.commitHuman(side, mv, now)
}

func (c *Controller) commitHuman(side nchess.Color, mv board.Move, now time.Time) error {
	if c.chargeClock(now) {
		return nil
	}
	return c.commit(side, mv, now)
}

func (c *Controller) isTarget(sq nchess.Square) bool {
	for _, mv := range c.pos.LegalMovesFrom(c.selected) {
		if mv.To == sq {
			return true
		}
	}
	return false
}

// Route applies one decoded input event. The event's own timestamp wins
// over now when it is set.
func (c *Controller) Route(ev arenadto.InputEvent, now time.Time) error {
	at := now
	if !ev.At.IsZero() {
		at = ev.At
	}
	switch ev.Type {
	case arenadto.InputSelect, arenadto.InputDrop:
		sq, err := board.ParseSquare(ev.Square)
		if err != nil {
			return err
		}
		if ev.Type == arenadto.InputSelect {
			return c.Select(sq, at)
		}
		return c.Drop(sq, at)
	case arenadto.InputDrag:
		return c.DragUpdate(ev.X, ev.Y)
	case arenadto.InputPromote:
		kind, err := ParsePromotion(ev.Piece)
		if err != nil {
			return err
		}
		return c.ChoosePromotion(kind, at)
	case arenadto.InputPause:
		return c.TogglePause(at)
	case arenadto.InputAbandon:
		return c.Abandon(at)
	default:
		return fmt.Errorf("unknown input event %q", ev.Type)
	}
}

func ParsePromotion(text string) (nchess.PieceType, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "q", "queen":
		return nchess.Queen, nil
	case "r", "rook":
		return nchess.Rook, nil
	case "b", "bishop":
		return nchess.Bishop, nil
	case "n", "knight":
		return nchess.Knight, nil
	default:
		return nchess.NoPieceType, fmt.Errorf("invalid promotion piece %q", text)
	}
}
