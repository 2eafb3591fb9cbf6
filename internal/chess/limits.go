package chess

import (
	"time"

	"github.com/park285/cheese-arena/internal/chess/uci"
)

const minMoveTime = 10 * time.Millisecond

// LimitsForBudget turns a per-move time budget into UCI search limits.
func LimitsForBudget(budget time.Duration) uci.Limits {
	return uci.Limits{MoveTimeMillis: int(max(budget, minMoveTime) / time.Millisecond)}
}
