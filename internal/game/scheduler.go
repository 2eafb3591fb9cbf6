package game

import (
	"context"
	"errors"
	"time"

	"github.com/park285/cheese-arena/internal/chess/channel"
)

// NewDualEngine builds a controller where both sides are engines. Start
// dispatches white's channel, and every applied move dispatches the other
// channel with a copy of the position that already contains it.
func NewDualEngine(white, black *channel.Channel, cfg Config) (*Controller, error) {
	if white == nil || black == nil {
		return nil, errors.New("dual engine needs two channels")
	}
	if white == black {
		return nil, errors.New("dual engine needs distinct channels per side")
	}
	cfg.White = EngineSlot{Channel: white}
	cfg.Black = EngineSlot{Channel: black}
	return NewController(cfg)
}

// Play starts c and ticks it every interval until the game ends or ctx is
// done, in which case the game is abandoned. It is the headless loop used for
// engine matches; interactive sessions go through Session.Run.
func Play(ctx context.Context, c *Controller, interval time.Duration) (Result, error) {
	if interval <= 0 {
		interval = defaultTick
	}
	if err := c.Start(time.Now()); err != nil {
		return Result{}, err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for !c.Over() {
		select {
		case <-ctx.Done():
			_ = c.Abandon(time.Now())
		case now := <-ticker.C:
			if err := c.Tick(now); err != nil {
				return Result{}, err
			}
		}
	}
	res, _ := c.Result()
	return res, nil
}
