package game

import (
	"context"
	"errors"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

const defaultTick = 50 * time.Millisecond

// Session is the aggregate root of one game: it owns the controller and
// everything the controller owns, and drives it from a single goroutine.
type Session struct {
	ID          uuid.UUID
	Controller  *Controller
	TimeControl string
	StartedAt   time.Time
	EndedAt     time.Time

	describe func(Result) string
	logger   *zap.Logger
	seq      uint64
}

type SessionOption func(*Session)

// WithResultText sets the banner text attached to finished snapshots.
func WithResultText(fn func(Result) string) SessionOption {
	return func(s *Session) { s.describe = fn }
}

func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTimeControl(tc string) SessionOption {
	return func(s *Session) { s.TimeControl = tc }
}

func NewSession(ctrl *Controller, opts ...SessionOption) *Session {
	s := &Session{
		ID:         uuid.New(),
		Controller: ctrl,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.ID.String()))
	return s
}

// RunOptions wires a session to the outside world. Publish and Reject are
// called on the control goroutine and must not block.
type RunOptions struct {
	Tick    time.Duration
	Inputs  <-chan arenadto.InputEvent
	Publish func(arenadto.Snapshot)
	Reject  func(arenadto.Rejection)
	Now     func() time.Time
}

// Run starts the game and drives it until it ends. Canceling ctx abandons
// the game; outstanding engine work is left to finish on its own.
func (s *Session) Run(ctx context.Context, opts RunOptions) (Result, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.Tick
	if interval <= 0 {
		interval = defaultTick
	}
	publish := opts.Publish
	if publish == nil {
		publish = func(arenadto.Snapshot) {}
	}

	s.StartedAt = now()
	if err := s.Controller.Start(s.StartedAt); err != nil {
		return Result{}, err
	}
	publish(s.Snapshot(s.StartedAt))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	inputs := opts.Inputs
	for !s.Controller.Over() {
		select {
		case <-ctx.Done():
			_ = s.Controller.Abandon(now())
		case ev, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			if err := s.Controller.Route(ev, now()); err != nil {
				s.reject(ev, err, opts.Reject)
			}
		case <-ticker.C:
			if err := s.Controller.Tick(now()); err != nil {
				s.logger.Error("tick_failed", zap.Error(err))
				return Result{}, err
			}
		}
		publish(s.Snapshot(now()))
	}

	s.EndedAt = now()
	res, _ := s.Controller.Result()
	return res, nil
}

func (s *Session) reject(ev arenadto.InputEvent, err error, sink func(arenadto.Rejection)) {
	code := "rejected"
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		code = "illegal_move"
	case errors.Is(err, ErrNotYourTurn):
		code = "not_your_turn"
	case errors.Is(err, ErrPaused):
		code = "paused"
	case errors.Is(err, ErrPromotionPending):
		code = "promotion_pending"
	case errors.Is(err, ErrGameOver):
		code = "game_over"
	}
	s.logger.Debug("input_rejected", zap.String("event", string(ev.Type)), zap.String("code", code), zap.Error(err))
	if sink != nil {
		sink(arenadto.Rejection{SessionID: s.ID.String(), Event: ev.Type, Code: code, Message: err.Error()})
	}
}

// Snapshot is the controller snapshot stamped with session identity.
func (s *Session) Snapshot(now time.Time) arenadto.Snapshot {
	s.seq++
	snap := s.Controller.Snapshot(now)
	snap.SessionID = s.ID.String()
	snap.Seq = s.seq
	if snap.Result != nil && s.describe != nil {
		res, _ := s.Controller.Result()
		snap.Result.Message = s.describe(res)
	}
	return snap
}

// Record summarizes a finished session for persistence.
func (s *Session) Record() domain.FinishedGame {
	c := s.Controller
	res, _ := c.Result()
	white, black := c.Slot(nchess.White), c.Slot(nchess.Black)
	ended := s.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	pos := c.pos
	tags := map[string]string{
		"Event":  "cheese-arena",
		"Site":   "local",
		"Date":   ended.Format("2006.01.02"),
		"White":  white.Label(),
		"Black":  black.Label(),
		"Result": res.Score(),
	}
	if s.TimeControl != "" {
		tags["TimeControl"] = s.TimeControl
	}
	if res.Kind != "" {
		tags["Termination"] = string(res.Kind)
	}
	duration := ended.Sub(s.StartedAt)
	if duration < 0 {
		duration = 0
	}
	return domain.FinishedGame{
		SessionID:      s.ID.String(),
		White:          white.Label(),
		Black:          black.Label(),
		WhiteKind:      slotKind(white),
		BlackKind:      slotKind(black),
		TimeControl:    s.TimeControl,
		StartFEN:       pos.StartFEN(),
		Result:         string(res.Kind),
		Winner:         ColorName(res.Winner),
		Score:          res.Score(),
		Method:         methodName(res.Method),
		MovesUCI:       pos.MovesUCI(),
		MovesSAN:       pos.MovesSAN(),
		PGN:            pos.PGN(tags),
		WhiteRemaining: c.clock.Remaining(nchess.White),
		BlackRemaining: c.clock.Remaining(nchess.Black),
		StartedAt:      s.StartedAt,
		EndedAt:        ended,
		Duration:       duration,
	}
}

// GameRecord is Record in its transport form.
func (s *Session) GameRecord() arenadto.GameRecord {
	rec := s.Record()
	res, _ := s.Controller.Result()
	out := arenadto.GameRecord{
		SessionID: rec.SessionID,
		White:     rec.White,
		Black:     rec.Black,
		Result: arenadto.Result{
			Kind:   rec.Result,
			Winner: rec.Winner,
			Method: rec.Method,
			Score:  rec.Score,
		},
		MovesUCI:    rec.MovesUCI,
		MovesSAN:    rec.MovesSAN,
		PGN:         rec.PGN,
		StartedAt:   rec.StartedAt,
		EndedAt:     rec.EndedAt,
		Duration:    rec.Duration,
		TimeControl: rec.TimeControl,
	}
	if s.describe != nil {
		out.Result.Message = s.describe(res)
	}
	return out
}

func slotKind(s Slot) string {
	if _, ok := s.(EngineSlot); ok {
		return "engine"
	}
	return "human"
}
