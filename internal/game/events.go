package game

import (
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/board"
)

type EventKind string

const (
	EventStarted     EventKind = "started"
	EventDispatched  EventKind = "dispatched"
	EventMoveApplied EventKind = "move_applied"
	EventRejected    EventKind = "rejected"
	EventEngineRetry EventKind = "engine_retry"
	EventPaused      EventKind = "paused"
	EventResumed     EventKind = "resumed"
	EventGameOver    EventKind = "game_over"
)

// Event is delivered synchronously to observers on the control goroutine.
type Event struct {
	Kind      EventKind
	At        time.Time
	Side      nchess.Color
	Move      board.Move
	SAN       string
	Capture   board.CaptureOutcome
	Result    Result
	RequestID string
	Err       error
}

// OnEvent registers fn for every subsequent event. Observers must not call
// back into the controller.
func (c *Controller) OnEvent(fn func(Event)) {
	if fn != nil {
		c.observers = append(c.observers, fn)
	}
}

func (c *Controller) emit(ev Event) {
	for _, fn := range c.observers {
		fn(ev)
	}
}
