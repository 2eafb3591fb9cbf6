package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	"github.com/park285/cheese-arena/internal/chess/channel"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/msgcat"
)

// player is one side of a match: an engine with a display name.
type player interface {
	channel.MoveProvider
	Name() string
}

type gameInfo struct {
	number       int
	firstIsWhite bool
}

type gameResult struct {
	info    gameInfo
	result  game.Result
	white   string
	black   string
	plies   int
	pgn     string
	elapsed time.Duration
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, pgnOut io.Writer) error {
	logger.Info("arena_started",
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("games", cfg.Arena.Games),
		zap.Int("concurrency", cfg.Arena.Concurrency),
		zap.String("time_control", cfg.TimeControl),
		zap.Duration("move_budget", cfg.MoveBudget),
	)
	defer logger.Info("arena_finished")

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	gameInfos := make(chan gameInfo)
	gameResults := make(chan gameResult)

	g.Go(func() error {
		defer close(gameInfos)
		for i := 0; i < cfg.Arena.Games; i++ {
			info := gameInfo{number: i + 1, firstIsWhite: !cfg.Arena.SwapColors || i%2 == 0}
			select {
			case gameInfos <- info:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		return showResults(ctx, cat, arenabuilder.EngineName(cfg.White), arenabuilder.EngineName(cfg.Black), gameResults, pgnOut, logger)
	})

	var wg sync.WaitGroup
	for i := 0; i < cfg.Arena.Concurrency; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return playGames(ctx, cfg, logger, gameInfos, gameResults)
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(gameResults)
		return nil
	})
	return g.Wait()
}

// playGames owns one engine pair for its lifetime; each game gets fresh
// channels.
func playGames(ctx context.Context, cfg *config.Config, logger *zap.Logger, gameInfos <-chan gameInfo, gameResults chan<- gameResult) error {
	first, second, err := arenabuilder.NewEngines(cfg, logger)
	if err != nil {
		return err
	}
	defer first.Close()
	defer second.Close()

	// Workers may still be running when a game ends; they finish against
	// this context, which outlives every game of the worker.
	root, cancel := context.WithCancel(context.Background())
	defer cancel()

	for info := range gameInfos {
		res, err := playGame(ctx, root, cfg, logger, first, second, info)
		if err != nil {
			return err
		}
		select {
		case gameResults <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func playGame(ctx, root context.Context, cfg *config.Config, logger *zap.Logger, first, second player, info gameInfo) (gameResult, error) {
	white, black := first, second
	if !info.firstIsWhite {
		white, black = second, first
	}
	gcfg, err := arenabuilder.ControllerConfig(cfg, logger.With(zap.Int("game", info.number)))
	if err != nil {
		return gameResult{}, err
	}
	wch := arenabuilder.NewChannel(root, white, cfg, logger)
	bch := arenabuilder.NewChannel(root, black, cfg, logger)
	ctrl, err := game.NewDualEngine(wch, bch, gcfg)
	if err != nil {
		return gameResult{}, err
	}

	started := time.Now()
	res, err := game.Play(ctx, ctrl, cfg.Tick)
	if err != nil {
		return gameResult{}, fmt.Errorf("game %d: %w", info.number, err)
	}
	elapsed := time.Since(started)
	// A search still running after a forfeit holds the engine's process.
	// The next game must not pay for it out of its own clock.
	wch.Wait()
	bch.Wait()
	pos := ctrl.Position()
	pgn := pos.PGN(map[string]string{
		"Event":       "cheese-arena match",
		"Round":       fmt.Sprint(info.number),
		"White":       white.Name(),
		"Black":       black.Name(),
		"Result":      res.Score(),
		"TimeControl": cfg.TimeControl,
		"Termination": string(res.Kind),
	})
	return gameResult{
		info:    info,
		result:  res,
		white:   white.Name(),
		black:   black.Name(),
		plies:   pos.Ply(),
		pgn:     pgn,
		elapsed: elapsed,
	}, nil
}

// firstScore is the result from the first engine's point of view: 1, 0.5 or
// 0, and false for games without a result.
func firstScore(r gameResult) (float64, bool) {
	switch {
	case r.result.Winner == nchess.White:
		if r.info.firstIsWhite {
			return 1, true
		}
		return 0, true
	case r.result.Winner == nchess.Black:
		if r.info.firstIsWhite {
			return 0, true
		}
		return 1, true
	case r.result.Kind == game.ResultStalemate || r.result.Kind == game.ResultDraw:
		return 0.5, true
	default:
		return 0, false
	}
}
