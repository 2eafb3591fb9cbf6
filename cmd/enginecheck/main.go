package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	corechess "github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/chess/uci"
)

func main() {
	enginePath := flag.String("engine", os.Getenv("ARENA_BLACK_ENGINE"), "UCI engine binary")
	budget := flag.Duration("movetime", time.Second, "search budget")
	fen := flag.String("fen", "", "position to search (default: start position)")
	multiPV := flag.Int("multipv", 3, "candidate lines to request")
	flag.Parse()

	if *enginePath == "" {
		log.Fatal("-engine or ARENA_BLACK_ENGINE is required")
	}
	pos := board.NewPosition()
	if *fen != "" {
		p, err := board.FromFEN(*fen)
		if err != nil {
			log.Fatalf("bad fen: %v", err)
		}
		pos = p
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second+*budget)
	defer cancel()

	started := time.Now()
	session, err := uci.NewSession(ctx, *enginePath, uci.Options{MultiPV: *multiPV}, logger)
	if err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer session.Close()
	if err := session.EnsureReady(ctx); err != nil {
		log.Fatalf("isready: %v", err)
	}
	log.Printf("engine ready in %s", time.Since(started).Round(time.Millisecond))

	limits := corechess.LimitsForBudget(*budget)
	goCmd, err := uci.GoCommand(limits)
	if err != nil {
		log.Fatalf("limits: %v", err)
	}
	log.Print(goCmd)
	started = time.Now()
	resp, err := session.Search(ctx, uci.SearchRequest{FEN: pos.FEN(), Limits: limits})
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	took := time.Since(started)

	mv, err := board.ParseMove(resp.BestMove)
	switch {
	case err != nil:
		log.Printf("bestmove %q is not a move: %v", resp.BestMove, err)
	case !pos.IsLegal(mv):
		log.Printf("bestmove %s is illegal in %s", mv, pos.FEN())
	default:
		fmt.Printf("bestmove %s (%s)\n", mv, took.Round(time.Millisecond))
	}
	for i, c := range resp.Candidates {
		fmt.Printf("  %d. %s depth=%d cp=%d pv=%v\n", i+1, c.Move, c.Depth, c.EvalCP, c.Principal)
	}
}
