package arenadto

import "time"

// Snapshot is the read-only view handed to the presentation layer once per
// tick.
type Snapshot struct {
	SessionID        string            `json:"session_id"`
	Seq              uint64            `json:"seq"`
	At               time.Time         `json:"at"`
	Placement        []string          `json:"placement"`
	FEN              string            `json:"fen"`
	SideToMove       string            `json:"side_to_move"`
	Orientation      string            `json:"orientation"`
	InCheck          bool              `json:"in_check"`
	Selected         string            `json:"selected,omitempty"`
	Targets          []string          `json:"targets,omitempty"`
	Drag             *DragPoint        `json:"drag,omitempty"`
	PendingPromotion *PendingPromotion `json:"pending_promotion,omitempty"`
	Captured         CapturedPieces    `json:"captured"`
	Material         MaterialScore     `json:"material"`
	Clocks           Clocks            `json:"clocks"`
	State            string            `json:"state"`
	Result           *Result           `json:"result,omitempty"`
	LastMove         string            `json:"last_move,omitempty"`
	MovesUCI         []string          `json:"moves_uci"`
	MovesSAN         []string          `json:"moves_san"`
	Engines          map[string]Engine `json:"engines,omitempty"`
	Opening          *Opening          `json:"opening,omitempty"`
}

type DragPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PendingPromotion struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Choices []string `json:"choices"`
}

type Piece struct {
	Kind  string `json:"kind"`
	Color string `json:"color"`
	Ply   int    `json:"ply"`
}

// CapturedPieces lists what each side has taken, in capture order.
type CapturedPieces struct {
	White []Piece `json:"white"`
	Black []Piece `json:"black"`
}

type MaterialScore struct {
	White int `json:"white"`
	Black int `json:"black"`
}

type Clocks struct {
	WhiteMillis int64  `json:"white_ms"`
	BlackMillis int64  `json:"black_ms"`
	Active      string `json:"active"`
	Running     bool   `json:"running"`
	Untimed     bool   `json:"untimed"`
}

type Result struct {
	Kind    string `json:"kind"`
	Winner  string `json:"winner,omitempty"`
	Method  string `json:"method,omitempty"`
	Score   string `json:"score"`
	Message string `json:"message,omitempty"`
}

type Engine struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	PendingMillis int64  `json:"pending_ms,omitempty"`
	Failures      int    `json:"failures,omitempty"`
}

type Opening struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}
