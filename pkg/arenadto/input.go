package arenadto

import "time"

type InputType string

const (
	InputSelect  InputType = "select"
	InputDrag    InputType = "drag"
	InputDrop    InputType = "drop"
	InputPromote InputType = "promote"
	InputPause   InputType = "pause"
	InputAbandon InputType = "abandon"
)

// InputEvent is one user gesture routed from the presentation layer.
type InputEvent struct {
	Type   InputType `json:"type"`
	Square string    `json:"square,omitempty"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	Piece  string    `json:"piece,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

// Rejection is pushed back when an input event could not be applied.
type Rejection struct {
	SessionID string    `json:"session_id"`
	Event     InputType `json:"event"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
}

func (r Rejection) Error() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Code != "" {
		return r.Code
	}
	return "input rejected"
}
