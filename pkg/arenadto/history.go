package arenadto

import "time"

// GameRecord is the summary pushed when a session ends.
type GameRecord struct {
	SessionID   string        `json:"session_id"`
	White       string        `json:"white"`
	Black       string        `json:"black"`
	Result      Result        `json:"result"`
	MovesUCI    []string      `json:"moves_uci"`
	MovesSAN    []string      `json:"moves_san"`
	PGN         string        `json:"pgn"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration"`
	TimeControl string        `json:"time_control,omitempty"`
}
