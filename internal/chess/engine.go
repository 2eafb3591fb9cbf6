package chess

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/internal/chess/book"
	"github.com/park285/cheese-arena/internal/chess/uci"
)

// ProcessMode decides how long an engine process lives.
type ProcessMode string

const (
	// PerCall starts and tears down a process for every move request.
	PerCall ProcessMode = "per_call"
	// PerGame keeps one process warm in a pool until the engine is closed.
	PerGame ProcessMode = "per_game"
)

var (
	ErrBinaryRequired = errors.New("engine binary path required")
	ErrUnknownMode    = errors.New("unknown engine process mode")
)

type EngineConfig struct {
	Name       string
	BinaryPath string
	Mode       ProcessMode
	Options    uci.Options
	// Book, when set, answers the opening plies without a search.
	Book *book.Book
}

// Engine computes moves by asking an external UCI binary. ComputeMove is a
// blocking call meant to run on a channel worker, never on the control loop.
type Engine struct {
	cfg    EngineConfig
	pool   *uci.Pool
	logger *zap.Logger
}

func ParseProcessMode(text string) (ProcessMode, error) {
	switch ProcessMode(strings.ToLower(strings.TrimSpace(text))) {
	case "", PerCall:
		return PerCall, nil
	case PerGame:
		return PerGame, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, text)
	}
}

func NewEngine(cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.BinaryPath) == "" {
		return nil, ErrBinaryRequired
	}
	resolved, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	cfg.BinaryPath = resolved
	if cfg.Mode == "" {
		cfg.Mode = PerCall
	}
	if cfg.Mode != PerCall && cfg.Mode != PerGame {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.BinaryPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger.With(zap.String("engine", cfg.Name)),
	}
	if cfg.Mode == PerGame {
		e.pool = uci.NewPool(uci.PoolConfig{Capacity: 1, Logger: e.logger})
	}
	return e, nil
}

func (e *Engine) Name() string { return e.cfg.Name }

func (e *Engine) Mode() ProcessMode { return e.cfg.Mode }

// ComputeMove searches pos for roughly budget and returns the engine's move.
func (e *Engine) ComputeMove(ctx context.Context, pos *board.Position, budget time.Duration) (board.Move, error) {
	if e.cfg.Book != nil {
		mv, ok, err := e.cfg.Book.Probe(pos)
		switch {
		case err != nil:
			e.logger.Warn("book_probe_failed", zap.Error(err))
		case ok:
			e.logger.Debug("book_move", zap.String("move", mv.String()), zap.Int("ply", pos.Ply()))
			return mv, nil
		}
	}

	req := uci.SearchRequest{
		FEN:    pos.StartFEN(),
		Moves:  pos.MovesUCI(),
		Limits: LimitsForBudget(budget),
	}

	var (
		resp uci.SearchResponse
		err  error
	)
	start := time.Now()
	switch e.cfg.Mode {
	case PerGame:
		resp, err = e.searchPooled(ctx, req)
	default:
		resp, err = e.searchOnce(ctx, req)
	}
	if err != nil {
		return board.Move{}, err
	}

	mv, err := board.ParseMove(resp.BestMove)
	if err != nil {
		return board.Move{}, fmt.Errorf("engine %s: %w", e.cfg.Name, err)
	}
	fields := []zap.Field{
		zap.String("bestmove", resp.BestMove),
		zap.Int("ply", pos.Ply()),
		zap.Duration("took", time.Since(start)),
	}
	if len(resp.Candidates) > 0 {
		top := resp.Candidates[0]
		fields = append(fields, zap.Int("depth", top.Depth), zap.Int("eval_cp", top.EvalCP))
	}
	e.logger.Debug("engine_search", fields...)
	return mv, nil
}

func (e *Engine) searchOnce(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	session, err := uci.NewSession(ctx, e.cfg.BinaryPath, e.cfg.Options, e.logger)
	if err != nil {
		return uci.SearchResponse{}, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			e.logger.Warn("engine_close_failed", zap.Error(cerr))
		}
	}()
	if err := session.NewGame(ctx); err != nil {
		return uci.SearchResponse{}, err
	}
	return session.Search(ctx, req)
}

func (e *Engine) searchPooled(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	session, err := e.pool.Acquire(ctx, e.cfg.BinaryPath, e.cfg.Options)
	if err != nil {
		return uci.SearchResponse{}, err
	}
	var releaseErr error
	defer func() {
		e.pool.Release(session, releaseErr)
	}()

	resp, err := session.Search(ctx, req)
	if err != nil && !errors.Is(err, uci.ErrNoBestMove) {
		releaseErr = err
	}
	return resp, err
}

// Close stops pooled processes. Per-call engines hold nothing.
func (e *Engine) Close() error {
	if e.pool == nil {
		return nil
	}
	st := e.pool.Stats()
	e.logger.Debug("engine_pool_close", zap.Int("live", st.Live), zap.Int("idle", st.Idle))
	return e.pool.Close()
}
