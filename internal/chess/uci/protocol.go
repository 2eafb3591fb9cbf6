package uci

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// mateScore stands in for a forced mate in centipawn terms.
const mateScore = 30000

var ErrNoLimits = errors.New("no search limits specified")

// Options are engine settings sent with setoption. Zero values are not sent,
// so an unconfigured engine runs with its own defaults.
type Options struct {
	Threads    int  `yaml:"threads"`
	HashMB     int  `yaml:"hash_mb"`
	SkillLevel *int `yaml:"skill_level"`
	Elo        int  `yaml:"elo"`
	MultiPV    int  `yaml:"multipv"`
}

func (o Options) validate() error {
	switch {
	case o.SkillLevel != nil && (*o.SkillLevel < 0 || *o.SkillLevel > 20):
		return fmt.Errorf("skill level %d out of range 0-20", *o.SkillLevel)
	case o.Threads < 0, o.HashMB < 0, o.MultiPV < 0, o.Elo < 0:
		return fmt.Errorf("negative engine option in %+v", o)
	}
	return nil
}

// key identifies processes that can serve the same requests.
func (o Options) key() string {
	skill := -1
	if o.SkillLevel != nil {
		skill = *o.SkillLevel
	}
	return fmt.Sprintf("thr=%d|skill=%d|hash=%d|multipv=%d|elo=%d", o.Threads, skill, o.HashMB, o.MultiPV, o.Elo)
}

func optionCommands(o Options) []string {
	var cmds []string
	set := func(name string, value any) {
		cmds = append(cmds, fmt.Sprintf("setoption name %s value %v\n", name, value))
	}
	if o.Threads > 0 {
		set("Threads", o.Threads)
	}
	if o.HashMB > 0 {
		set("Hash", o.HashMB)
	}
	if o.SkillLevel != nil {
		set("Skill Level", *o.SkillLevel)
	}
	if o.MultiPV > 0 {
		set("MultiPV", o.MultiPV)
	}
	if o.Elo > 0 {
		set("UCI_LimitStrength", true)
		set("UCI_Elo", o.Elo)
	}
	return cmds
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

// GoCommand renders l as a "go" line without the trailing newline.
func GoCommand(l Limits) (string, error) {
	parts := []string{"go"}
	add := func(name string, v int) {
		if v > 0 {
			parts = append(parts, name, strconv.Itoa(v))
		}
	}
	add("depth", l.Depth)
	add("movetime", l.MoveTimeMillis)
	add("nodes", l.NodeCap)
	if len(parts) == 1 {
		return "", ErrNoLimits
	}
	return strings.Join(parts, " "), nil
}

// searchTimeout bounds the wait for bestmove. It only guards against a
// wedged process; the engine is trusted to honor movetime.
func searchTimeout(l Limits) time.Duration {
	const floor, ceiling = 6 * time.Second, 20 * time.Second
	if l.MoveTimeMillis > 0 {
		return 3 * (time.Duration(l.MoveTimeMillis)*time.Millisecond + 2*time.Second)
	}
	d := time.Duration(l.Depth) * 300 * time.Millisecond
	return min(max(d, floor), ceiling)
}

func positionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if fen = strings.TrimSpace(fen); fen == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// Candidate is the last reported line for one multipv slot.
type Candidate struct {
	Move      string
	Depth     int
	EvalCP    int
	Mate      int
	Principal []string
}

// parseInfo reads an "info" line. Lines without a pv carry no candidate.
func parseInfo(text string) (slot int, c Candidate, ok bool) {
	fields := strings.Fields(text)
	slot = 1
	for i := 1; i < len(fields); i++ {
		next := func() int {
			if i+1 >= len(fields) {
				return 0
			}
			i++
			v, _ := strconv.Atoi(fields[i])
			return v
		}
		switch fields[i] {
		case "depth":
			c.Depth = next()
		case "multipv":
			slot = next()
		case "score":
			if i+1 >= len(fields) {
				continue
			}
			i++
			switch fields[i] {
			case "cp":
				c.EvalCP = next()
			case "mate":
				c.Mate = next()
				c.EvalCP = mateScore
				if c.Mate < 0 {
					c.EvalCP = -mateScore
				}
			}
		case "pv":
			if i+1 < len(fields) {
				c.Principal = append([]string(nil), fields[i+1:]...)
				c.Move = c.Principal[0]
				return slot, c, true
			}
			return 0, Candidate{}, false
		}
	}
	return 0, Candidate{}, false
}

// byMultiPV orders the collected candidates by slot.
func byMultiPV(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	slots := make([]int, 0, len(m))
	for k := range m {
		slots = append(slots, k)
	}
	sort.Ints(slots)
	out := make([]Candidate, 0, len(slots))
	for _, k := range slots {
		out = append(out, m[k])
	}
	return out
}

// parseBestMove splits "bestmove <move> [ponder <move>]". A null move comes
// back as "".
func parseBestMove(text string) (best, ponder string) {
	fields := strings.Fields(text)
	if len(fields) >= 2 {
		best = fields[1]
	}
	if len(fields) >= 4 && fields[2] == "ponder" {
		ponder = fields[3]
	}
	switch best {
	case "(none)", "0000":
		best = ""
	}
	return best, ponder
}
