package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
)

func main() {
	configPath := flag.String("config", "", "config file (default: $XDG_CONFIG_HOME/"+config.ConfigFile+")")
	games := flag.Int("games", 0, "number of games (overrides arena.games)")
	concurrency := flag.Int("concurrency", 0, "games played at once (overrides arena.concurrency)")
	pgnPath := flag.String("pgn", "", "append finished games to this PGN file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *games > 0 {
		cfg.Arena.Games = *games
	}
	if *concurrency > 0 {
		cfg.Arena.Concurrency = *concurrency
	}
	if !cfg.White.IsEngine() || !cfg.Black.IsEngine() {
		log.Fatalf("arena needs engines on both sides")
	}

	logger, err := obslog.Init(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pgnOut *os.File
	if *pgnPath != "" {
		pgnOut, err = os.OpenFile(*pgnPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("open pgn: %v", err)
		}
		defer pgnOut.Close()
	}

	err = run(ctx, cfg, logger, pgnOut)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("arena_failed", zap.Error(err))
		os.Exit(1)
	}
}
