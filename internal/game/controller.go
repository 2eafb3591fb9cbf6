package game

import (
	"errors"
	"fmt"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/internal/chess/channel"
	"github.com/park285/cheese-arena/internal/clock"
)

// engineRetryLimit is how many times a failed engine request is re-sent
// before the game ends as engine unavailable.
const engineRetryLimit = 1

var (
	ErrGameOver         = errors.New("game is over")
	ErrNotStarted       = errors.New("game not started")
	ErrAlreadyStarted   = errors.New("game already started")
	ErrNotYourTurn      = errors.New("side to move is not human")
	ErrPaused           = errors.New("game is paused")
	ErrNoPromotion      = errors.New("no promotion pending")
	ErrPromotionPending = errors.New("promotion choice pending")
)

type Phase int

const (
	AwaitingInput Phase = iota
	EnginePending
	Paused
	GameOver
)

func (p Phase) String() string {
	switch p {
	case AwaitingInput:
		return "awaiting_input"
	case EnginePending:
		return "engine_pending"
	case Paused:
		return "paused"
	case GameOver:
		return "game_over"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Config struct {
	White Slot
	Black Slot
	// StartFEN is empty for the standard starting position.
	StartFEN    string
	Initial     time.Duration
	Increment   time.Duration
	DragEnabled bool
	// Orientation is the side shown at the bottom of the board.
	Orientation nchess.Color
	Logger      *zap.Logger
}

// Controller is the turn state machine of one game. Every method must be
// called from the same goroutine; engine work happens on channel workers and
// comes back only through Tick.
type Controller struct {
	pos    *board.Position
	ledger *board.Ledger
	clock  *clock.Pair
	white  Slot
	black  Slot
	logger *zap.Logger

	dragEnabled bool
	orientation nchess.Color

	started bool
	phase   Phase
	resume  Phase
	result  Result

	selected  nchess.Square
	hasSel    bool
	drag      *dragPoint
	promotion *board.Move

	failures  map[nchess.Color]int
	observers []func(Event)
}

type dragPoint struct{ x, y float64 }

func NewController(cfg Config) (*Controller, error) {
	if cfg.White == nil || cfg.Black == nil {
		return nil, errors.New("both slots are required")
	}
	for _, s := range []Slot{cfg.White, cfg.Black} {
		if es, ok := s.(EngineSlot); ok && es.Channel == nil {
			return nil, errors.New("engine slot without a channel")
		}
	}
	pos, err := board.FromFEN(cfg.StartFEN)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	orientation := cfg.Orientation
	if orientation != nchess.Black {
		orientation = nchess.White
	}
	return &Controller{
		pos:         pos,
		ledger:      board.NewLedger(),
		clock:       clock.New(cfg.Initial, cfg.Increment),
		white:       cfg.White,
		black:       cfg.Black,
		logger:      logger,
		dragEnabled: cfg.DragEnabled,
		orientation: orientation,
		failures:    make(map[nchess.Color]int),
	}, nil
}

// Start runs the side to move's clock and, when that side is an engine,
// dispatches its first request.
func (c *Controller) Start(now time.Time) error {
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	if err := c.clock.Start(now, c.pos.Turn()); err != nil {
		return err
	}
	c.logger.Info("game_started",
		zap.String("white", c.white.Label()),
		zap.String("black", c.black.Label()),
		zap.String("fen", c.pos.FEN()),
	)
	c.emit(Event{Kind: EventStarted, At: now, Side: c.pos.Turn()})
	if res, over := resultFromPosition(c.pos); over {
		c.finish(now, res)
		return nil
	}
	return c.advance(now)
}

// Tick runs one control step: apply a ready engine move, then charge the
// clock and check for a flag fall. Paused and finished games are left alone.
func (c *Controller) Tick(now time.Time) error {
	if !c.started {
		return ErrNotStarted
	}
	if c.phase == Paused || c.phase == GameOver {
		return nil
	}
	if c.phase == EnginePending {
		if err := c.stepEngine(now); err != nil {
			return err
		}
	}
	if c.phase == AwaitingInput || c.phase == EnginePending {
		c.chargeClock(now)
	}
	return nil
}

func (c *Controller) stepEngine(now time.Time) error {
	side := c.pos.Turn()
	ch, ok := engineOf(c.slot(side))
	if !ok {
		return fmt.Errorf("engine pending for %s without an engine slot", ColorName(side))
	}
	if _, ready := ch.Poll(); !ready {
		return nil
	}
	// A flag that fell before the result was seen wins; the result stays in
	// the channel and is never applied.
	if c.chargeClock(now) {
		return nil
	}
	res, err := ch.Drain()
	if err != nil {
		return err
	}
	if res.Failed() {
		return c.engineFailed(side, ch, res.Err, now)
	}

	mv := res.Move
	if !c.pos.IsLegal(mv) {
		staged, err := c.pos.Stage(mv)
		if err != nil || !staged.NeedsPromotion {
			return c.engineFailed(side, ch, &board.IllegalMoveError{Move: mv, FEN: c.pos.FEN()}, now)
		}
		mv = mv.WithPromotion(nchess.Queen)
	}
	c.failures[side] = 0
	return c.commit(side, mv, now)
}

func (c *Controller) engineFailed(side nchess.Color, ch *channel.Channel, cause error, now time.Time) error {
	c.failures[side]++
	if c.failures[side] > engineRetryLimit {
		c.logger.Warn("engine_unavailable",
			zap.String("side", ColorName(side)),
			zap.String("engine", ch.Name()),
			zap.Error(cause),
		)
		c.finish(now, Result{Kind: ResultEngineUnavailable, Side: side, Detail: cause.Error()})
		return nil
	}
	c.logger.Warn("engine_retry",
		zap.String("side", ColorName(side)),
		zap.String("engine", ch.Name()),
		zap.Int("attempt", c.failures[side]),
		zap.Error(cause),
	)
	c.emit(Event{Kind: EventEngineRetry, At: now, Side: side, Err: cause})
	return c.dispatch(side, now)
}

// chargeClock debits the side to move up to now and ends the game on a flag
// fall. It reports whether the game ended.
func (c *Controller) chargeClock(now time.Time) bool {
	if err := c.clock.Tick(now); err != nil {
		return false
	}
	side, expired := c.clock.Expired()
	if !expired {
		return false
	}
	c.logger.Info("time_forfeit",
		zap.String("side", ColorName(side)),
		zap.Bool("engine_pending", c.phase == EnginePending),
	)
	c.finish(now, Result{Kind: ResultTimeForfeit, Winner: side.Other(), Side: side})
	return true
}

// commit applies a move already known to be legal for the side to move.
func (c *Controller) commit(side nchess.Color, mv board.Move, now time.Time) error {
	outcome, err := c.pos.Apply(mv)
	if err != nil {
		return err
	}
	c.ledger.RecordOutcome(outcome, c.pos.Ply())
	if err := c.clock.SwitchTurn(now); err != nil {
		return err
	}
	c.clearSelection()

	san := ""
	if moves := c.pos.MovesSAN(); len(moves) > 0 {
		san = moves[len(moves)-1]
	}
	c.logger.Info("move_applied",
		zap.String("side", ColorName(side)),
		zap.String("uci", mv.String()),
		zap.String("san", san),
		zap.Int("ply", c.pos.Ply()),
		zap.Bool("capture", outcome.Captured),
	)
	c.emit(Event{Kind: EventMoveApplied, At: now, Side: side, Move: mv, SAN: san, Capture: outcome})

	if res, over := resultFromPosition(c.pos); over {
		c.finish(now, res)
		return nil
	}
	return c.advance(now)
}

// advance hands the turn to the side to move: engines get a request, humans
// get AwaitingInput.
func (c *Controller) advance(now time.Time) error {
	side := c.pos.Turn()
	if _, ok := engineOf(c.slot(side)); ok {
		return c.dispatch(side, now)
	}
	c.phase = AwaitingInput
	return nil
}

func (c *Controller) dispatch(side nchess.Color, now time.Time) error {
	ch, _ := engineOf(c.slot(side))
	req, err := ch.Dispatch(c.pos, now)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", ColorName(side), err)
	}
	c.phase = EnginePending
	c.emit(Event{Kind: EventDispatched, At: now, Side: side, RequestID: req.ID.String()})
	return nil
}

// TogglePause flips between Paused and the phase it interrupted. The clock
// is settled before pausing, so a flag that already fell still ends the game.
func (c *Controller) TogglePause(now time.Time) error {
	if !c.started {
		return ErrNotStarted
	}
	if c.phase == GameOver {
		return ErrGameOver
	}
	if c.phase == Paused {
		c.clock.Resume(now)
		c.phase = c.resume
		c.logger.Info("game_resumed", zap.String("phase", c.phase.String()))
		c.emit(Event{Kind: EventResumed, At: now, Side: c.pos.Turn()})
		return nil
	}
	if c.chargeClock(now) {
		return nil
	}
	c.clock.Pause(now)
	c.resume = c.phase
	c.phase = Paused
	c.drag = nil
	c.logger.Info("game_paused", zap.String("interrupted", c.resume.String()))
	c.emit(Event{Kind: EventPaused, At: now, Side: c.pos.Turn()})
	return nil
}

// Abandon ends the game without a winner. An in-flight engine request keeps
// running and its result is dropped.
func (c *Controller) Abandon(now time.Time) error {
	if c.phase == GameOver {
		return ErrGameOver
	}
	side := c.pos.Turn()
	if !c.started {
		c.started = true
	}
	c.finish(now, Result{Kind: ResultAbandoned, Side: side})
	return nil
}

func (c *Controller) finish(now time.Time, res Result) {
	c.phase = GameOver
	c.result = res
	c.clock.Stop(now)
	c.clearSelection()
	c.logger.Info("game_over",
		zap.String("result", string(res.Kind)),
		zap.String("score", res.Score()),
		zap.String("winner", ColorName(res.Winner)),
		zap.Int("ply", c.pos.Ply()),
	)
	c.emit(Event{Kind: EventGameOver, At: now, Side: res.Side, Result: res})
}

func (c *Controller) slot(side nchess.Color) Slot {
	if side == nchess.Black {
		return c.black
	}
	return c.white
}

func (c *Controller) clearSelection() {
	c.hasSel = false
	c.selected = nchess.NoSquare
	c.drag = nil
	c.promotion = nil
}

func (c *Controller) Phase() Phase { return c.phase }

// Result is the terminal result; ok is false while the game is running.
func (c *Controller) Result() (Result, bool) {
	return c.result, c.phase == GameOver
}

func (c *Controller) Over() bool { return c.phase == GameOver }

// Position returns a copy of the live position.
func (c *Controller) Position() *board.Position { return c.pos.Clone() }

func (c *Controller) Slot(side nchess.Color) Slot { return c.slot(side) }

func (c *Controller) Remaining(side nchess.Color) time.Duration { return c.clock.Remaining(side) }

// Channels lists the engine channels bound to this game.
func (c *Controller) Channels() []*channel.Channel {
	var out []*channel.Channel
	for _, s := range []Slot{c.white, c.black} {
		if ch, ok := engineOf(s); ok {
			out = append(out, ch)
		}
	}
	return out
}
