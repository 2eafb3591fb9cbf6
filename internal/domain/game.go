package domain

import "time"

// FinishedGame is the persisted record of one completed session.
type FinishedGame struct {
	ID             int64
	SessionID      string
	White          string
	Black          string
	WhiteKind      string
	BlackKind      string
	TimeControl    string
	StartFEN       string
	Result         string
	Winner         string
	Score          string
	Method         string
	MovesUCI       []string
	MovesSAN       []string
	PGN            string
	WhiteRemaining time.Duration
	BlackRemaining time.Duration
	StartedAt      time.Time
	EndedAt        time.Time
	Duration       time.Duration
}
