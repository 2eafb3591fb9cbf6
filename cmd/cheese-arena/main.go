package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $XDG_CONFIG_HOME/"+config.ConfigFile+")")
	stdin := flag.Bool("stdin", false, "read input events from stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *stdin, logger); err != nil {
		logger.Error("arena_exit", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, readStdin bool, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Engine workers see only this context; it is canceled after the
	// session is over and persisted.
	engineRoot, cancelEngines := context.WithCancel(context.Background())
	defer cancelEngines()

	deps, err := arenabuilder.New(engineRoot, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("arena_close", zap.Error(err))
		}
	}()

	if cfg.HumanPlays() && deps.Inputs == nil && !readStdin {
		logger.Warn("no_input_source", zap.String("hint", "set input.ws_url or pass -stdin"))
	}

	sess := deps.Session
	inputs := make(chan arenadto.InputEvent, cfg.Input.Buffer)
	g, gctx := errgroup.WithContext(ctx)
	inputCtx, stopInputs := context.WithCancel(gctx)
	pubCtx, stopPublisher := context.WithCancel(context.Background())

	g.Go(func() error { return deps.Publisher.Run(pubCtx) })
	if deps.Inputs != nil {
		g.Go(func() error { return deps.Inputs.Run(inputCtx, inputs) })
	}
	if readStdin {
		go readConsole(inputCtx, os.Stdin, inputs, logger)
	}

	g.Go(func() error {
		defer stopPublisher()
		defer stopInputs()
		res, err := sess.Run(gctx, game.RunOptions{
			Tick:    cfg.Tick,
			Inputs:  inputs,
			Publish: deps.Publisher.Offer,
			Reject:  rejecter(deps, logger),
		})
		if err != nil {
			return err
		}
		logger.Info("session_finished",
			zap.String("session_id", sess.ID.String()),
			zap.String("result", string(res.Kind)),
			zap.String("score", res.Score()),
			zap.String("banner", arenabuilder.ResultText(deps.Catalog)(res)),
		)
		return persist(deps, logger)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// rejecter logs refused inputs and forwards them to the presenter without
// blocking the control goroutine.
func rejecter(deps *arenabuilder.Deps, logger *zap.Logger) func(arenadto.Rejection) {
	return func(rej arenadto.Rejection) {
		rej.Message = deps.Catalog.RejectionHint(rej.Code, rej.Message)
		logger.Info("input_rejected", zap.String("code", rej.Code), zap.String("hint", rej.Message))
		if deps.Presenter == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := deps.Presenter.PushRejection(ctx, rej); err != nil {
				logger.Debug("rejection_push_failed", zap.Error(err))
			}
		}()
	}
}

func persist(deps *arenabuilder.Deps, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec := deps.Session.Record()
	id, err := deps.Repo.Save(ctx, &rec)
	if err != nil {
		logger.Error("game_persist_error", zap.String("session_id", rec.SessionID), zap.Error(err))
		return err
	}
	logger.Info("game_persist", zap.String("session_id", rec.SessionID), zap.Int64("id", id), zap.String("score", rec.Score))

	if deps.Presenter != nil {
		if err := deps.Presenter.PushResult(ctx, deps.Session.GameRecord()); err != nil {
			logger.Warn("result_push_failed", zap.Error(err))
		}
	}
	return nil
}
