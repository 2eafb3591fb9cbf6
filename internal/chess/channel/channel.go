// Package channel runs one external move computation at a time for an engine
// slot without blocking the caller.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
)

type State int

const (
	Idle State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrEngineFailure  = errors.New("engine failure")
	ErrNothingToDrain = errors.New("channel has no result to drain")
)

// MoveProvider is the blocking engine call. It may take arbitrarily long and
// is never canceled by the channel.
type MoveProvider interface {
	ComputeMove(ctx context.Context, pos *board.Position, budget time.Duration) (board.Move, error)
}

type ProviderFunc func(ctx context.Context, pos *board.Position, budget time.Duration) (board.Move, error)

func (f ProviderFunc) ComputeMove(ctx context.Context, pos *board.Position, budget time.Duration) (board.Move, error) {
	return f(ctx, pos, budget)
}

// Request identifies one dispatched computation. The position handed to the
// worker is a private copy; callers only see its FEN.
type Request struct {
	ID       uuid.UUID
	Engine   string
	FEN      string
	Ply      int
	Budget   time.Duration
	IssuedAt time.Time
}

// Result is produced exactly once per Request.
type Result struct {
	RequestID uuid.UUID
	Engine    string
	Move      board.Move
	Err       error
	Elapsed   time.Duration
}

func (r Result) Failed() bool { return r.Err != nil }

// DoubleDispatchError is returned when Dispatch is called on a channel that
// still owns an undrained request.
type DoubleDispatchError struct {
	Engine  string
	State   State
	Pending uuid.UUID
}

func (e *DoubleDispatchError) Error() string {
	return fmt.Sprintf("engine %s: dispatch while %s (request %s)", e.Engine, e.State, e.Pending)
}

// Channel is owned by a single control goroutine. Only the result handoff
// crosses goroutines, through a buffered channel of capacity one created per
// request.
type Channel struct {
	name     string
	provider MoveProvider
	budget   time.Duration
	root     context.Context
	logger   *zap.Logger

	state   State
	current Request
	slot    chan Result
	result  Result

	workers sync.WaitGroup
}

type Option func(*Channel)

func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// New binds provider to a channel. root is the only context workers see; it
// should be canceled at process shutdown only.
func New(root context.Context, name string, provider MoveProvider, budget time.Duration, opts ...Option) *Channel {
	if root == nil {
		root = context.Background()
	}
	c := &Channel{
		name:     name,
		provider: provider,
		budget:   budget,
		root:     root,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("engine", name))
	return c
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) State() State { return c.state }

func (c *Channel) Budget() time.Duration { return c.budget }

// Dispatch copies pos and starts a worker for it. It fails with
// *DoubleDispatchError unless the channel is Idle.
func (c *Channel) Dispatch(pos *board.Position, now time.Time) (Request, error) {
	if c.state != Idle {
		return Request{}, &DoubleDispatchError{Engine: c.name, State: c.state, Pending: c.current.ID}
	}
	snapshot := pos.Clone()
	req := Request{
		ID:       uuid.New(),
		Engine:   c.name,
		FEN:      snapshot.FEN(),
		Ply:      snapshot.Ply(),
		Budget:   c.budget,
		IssuedAt: now,
	}
	slot := make(chan Result, 1)
	c.current = req
	c.slot = slot
	c.result = Result{}
	c.state = Pending

	c.workers.Add(1)
	go c.work(req, snapshot, slot)

	c.logger.Debug("engine_dispatch",
		zap.String("request_id", req.ID.String()),
		zap.Int("ply", req.Ply),
		zap.Duration("budget", req.Budget),
	)
	return req, nil
}

func (c *Channel) work(req Request, pos *board.Position, slot chan<- Result) {
	defer c.workers.Done()
	start := time.Now()
	res := Result{RequestID: req.ID, Engine: req.Engine}
	defer func() {
		if r := recover(); r != nil {
			res.Move = board.Move{}
			res.Err = fmt.Errorf("%w: panic: %v", ErrEngineFailure, r)
		}
		res.Elapsed = time.Since(start)
		slot <- res
	}()

	mv, err := c.provider.ComputeMove(c.root, pos, req.Budget)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrEngineFailure, err)
		return
	}
	res.Move = mv
}

// Poll never blocks. It returns the result once the worker has deposited it,
// moving the channel to Ready or Failed.
func (c *Channel) Poll() (Result, bool) {
	switch c.state {
	case Ready, Failed:
		return c.result, true
	case Pending:
	default:
		return Result{}, false
	}
	select {
	case res := <-c.slot:
		c.result = res
		c.slot = nil
		if res.Failed() {
			c.state = Failed
			c.logger.Warn("engine_failed",
				zap.String("request_id", res.RequestID.String()),
				zap.Duration("elapsed", res.Elapsed),
				zap.Error(res.Err),
			)
		} else {
			c.state = Ready
			c.logger.Debug("engine_ready",
				zap.String("request_id", res.RequestID.String()),
				zap.String("move", res.Move.String()),
				zap.Duration("elapsed", res.Elapsed),
			)
		}
		return res, true
	default:
		return Result{}, false
	}
}

// Drain hands the Ready or Failed result to the caller and returns to Idle.
func (c *Channel) Drain() (Result, error) {
	if c.state != Ready && c.state != Failed {
		return Result{}, fmt.Errorf("%w: engine %s is %s", ErrNothingToDrain, c.name, c.state)
	}
	res := c.result
	c.result = Result{}
	c.current = Request{}
	c.state = Idle
	return res, nil
}

// Pending reports the in-flight request, if any.
func (c *Channel) Pending() (Request, bool) {
	if c.state != Pending {
		return Request{}, false
	}
	return c.current, true
}

// PendingFor is how long the current request has been outstanding.
func (c *Channel) PendingFor(now time.Time) time.Duration {
	if c.state != Pending {
		return 0
	}
	return now.Sub(c.current.IssuedAt)
}

// Wait blocks until every worker this channel started has deposited its
// result. It is for shutdown and tests, not for the control loop.
func (c *Channel) Wait() { c.workers.Wait() }
