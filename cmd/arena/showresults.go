package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/msgcat"
)

type tally struct {
	wins, losses, draws, unfinished int
}

func (t *tally) add(r gameResult) {
	score, ok := firstScore(r)
	switch {
	case !ok:
		t.unfinished++
	case score == 1:
		t.wins++
	case score == 0:
		t.losses++
	default:
		t.draws++
	}
}

func (t tally) games() int { return t.wins + t.losses + t.draws + t.unfinished }

func showResults(ctx context.Context, cat *msgcat.Catalog, first, second string, gameResults <-chan gameResult, pgnOut io.Writer, logger *zap.Logger) error {
	var t tally
	for r := range gameResults {
		t.add(r)
		line := cat.RenderOr("arena.game_line", map[string]any{
			"Index": r.info.number,
			"White": r.white,
			"Black": r.black,
			"Score": r.result.Score(),
			"Kind":  string(r.result.Kind),
			"Plies": r.plies,
		}, fmt.Sprintf("game %d: %s", r.info.number, r.result.Score()))
		logger.Info(line, zap.Duration("elapsed", r.elapsed))

		summary := cat.RenderOr("arena.summary", map[string]any{
			"Games":      t.games(),
			"First":      first,
			"Second":     second,
			"FirstWins":  t.wins,
			"Draws":      t.draws,
			"SecondWins": t.losses,
		}, "")
		stat := computeStat(t.wins, t.losses, t.draws)
		logger.Info(summary,
			zap.Int("unfinished", t.unfinished),
			zap.Float64("score", stat.winningFraction),
			zap.Float64("elo_diff", stat.eloDifference),
			zap.Float64("los", stat.los),
		)

		if pgnOut != nil {
			if _, err := io.WriteString(pgnOut, r.pgn+"\n\n"); err != nil {
				return fmt.Errorf("write pgn: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

type gameStatistics struct {
	winningFraction float64
	eloDifference   float64
	los             float64
}

// computeStat gives the score fraction, the Elo difference it implies and the
// likelihood of superiority, all from the first engine's side.
func computeStat(wins, losses, draws int) gameStatistics {
	games := wins + losses + draws
	if games == 0 {
		return gameStatistics{winningFraction: 0.5, los: 0.5}
	}
	fraction := (float64(wins) + 0.5*float64(draws)) / float64(games)
	var elo float64
	switch fraction {
	case 0:
		elo = math.Inf(-1)
	case 1:
		elo = math.Inf(1)
	default:
		elo = -math.Log(1/fraction-1) * 400 / math.Ln10
	}
	los := 0.5
	if decisive := wins + losses; decisive > 0 {
		los = 0.5 + 0.5*math.Erf(float64(wins-losses)/math.Sqrt(2*float64(decisive)))
	}
	return gameStatistics{winningFraction: fraction, eloDifference: elo, los: los}
}
