package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

var (
	ErrNotRunning     = errors.New("clock not running")
	ErrAlreadyStarted = errors.New("clock already started")
	ErrBadControl     = errors.New("invalid time control")
)

// Pair is two countdown timers of which at most one runs at a time. It is
// not self-driving: the owner calls Tick at its own cadence, and only the
// owner's goroutine may touch it.
type Pair struct {
	white     time.Duration
	black     time.Duration
	increment time.Duration
	untimed   bool

	state     State
	active    nchess.Color
	turnStart time.Time
	started   bool
}

// New builds a stopped pair with initial time per side. initial <= 0 means no
// time limit: the pair still tracks turns but never expires.
func New(initial, increment time.Duration) *Pair {
	if increment < 0 {
		increment = 0
	}
	return &Pair{
		white:     initial,
		black:     initial,
		increment: increment,
		untimed:   initial <= 0,
		active:    nchess.White,
	}
}

// ParseTimeControl reads "minutes+increment_seconds" ("5+3", "10", "none").
func ParseTimeControl(text string) (initial, increment time.Duration, err error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" || s == "none" || s == "-" {
		return 0, 0, nil
	}
	base, inc, hasInc := strings.Cut(s, "+")
	minutes, err := strconv.ParseFloat(strings.TrimSpace(base), 64)
	if err != nil || minutes < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadControl, text)
	}
	initial = time.Duration(minutes * float64(time.Minute))
	if hasInc {
		secs, err := strconv.Atoi(strings.TrimSpace(inc))
		if err != nil || secs < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrBadControl, text)
		}
		increment = time.Duration(secs) * time.Second
	}
	return initial, increment, nil
}

// Start runs side's clock from now.
func (p *Pair) Start(now time.Time, side nchess.Color) error {
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.state = Running
	p.active = side
	p.turnStart = now
	return nil
}

// Tick debits the active side by the time since the last anchor and
// re-anchors at now.
func (p *Pair) Tick(now time.Time) error {
	if p.state != Running {
		return ErrNotRunning
	}
	p.debit(now)
	p.turnStart = now
	return nil
}

// SwitchTurn hands the clock to the other side. The mover's time was already
// debited by the Tick preceding the move; only the increment is credited.
func (p *Pair) SwitchTurn(now time.Time) error {
	if p.state != Running {
		return ErrNotRunning
	}
	p.credit(p.active, p.increment)
	p.active = p.active.Other()
	p.turnStart = now
	return nil
}

// Pause debits the active side once and drops the anchor. Pausing an
// already paused or stopped pair does nothing.
func (p *Pair) Pause(now time.Time) {
	if p.state != Running {
		return
	}
	p.debit(now)
	p.turnStart = time.Time{}
	p.state = Paused
}

// Resume re-anchors at now so the paused window is charged to nobody.
func (p *Pair) Resume(now time.Time) {
	if p.state != Paused {
		return
	}
	p.turnStart = now
	p.state = Running
}

// Stop freezes both clocks for good.
func (p *Pair) Stop(now time.Time) {
	if p.state == Running {
		p.debit(now)
	}
	p.turnStart = time.Time{}
	p.state = Stopped
}

// Expired reports a side whose time is gone. White is checked first, so when
// both are at or below zero white is the one reported.
func (p *Pair) Expired() (nchess.Color, bool) {
	if p.untimed {
		return nchess.NoColor, false
	}
	if p.white <= 0 {
		return nchess.White, true
	}
	if p.black <= 0 {
		return nchess.Black, true
	}
	return nchess.NoColor, false
}

// Remaining is the stored remaining time for side; it can go negative.
func (p *Pair) Remaining(side nchess.Color) time.Duration {
	if side == nchess.Black {
		return p.black
	}
	return p.white
}

func (p *Pair) State() State { return p.state }

func (p *Pair) Active() nchess.Color { return p.active }

func (p *Pair) Untimed() bool { return p.untimed }

func (p *Pair) Increment() time.Duration { return p.increment }

func (p *Pair) debit(now time.Time) {
	if p.turnStart.IsZero() {
		return
	}
	elapsed := now.Sub(p.turnStart)
	if elapsed <= 0 {
		return
	}
	p.credit(p.active, -elapsed)
}

func (p *Pair) credit(side nchess.Color, d time.Duration) {
	if p.untimed || d == 0 {
		return
	}
	switch side {
	case nchess.White:
		p.white += d
	case nchess.Black:
		p.black += d
	}
}
