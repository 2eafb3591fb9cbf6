package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

const fakeEngineEnv = "UCI_FAKE_ENGINE"

// TestMain lets the test binary double as a scripted UCI engine when
// re-executed with UCI_FAKE_ENGINE set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeEngineEnv); mode != "" {
		runFakeEngine(mode)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runFakeEngine(mode string) {
	in := bufio.NewScanner(os.Stdin)
	var moves []string
	games := 0
	for in.Scan() {
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			fmt.Println("id name fake")
			fmt.Println("uciok")
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			games++
		case "position":
			moves = nil
			for i, f := range fields {
				if f == "moves" {
					moves = append(moves, fields[i+1:]...)
					break
				}
			}
		case "go":
			switch mode {
			case "crash":
				os.Exit(3)
			case "none":
				fmt.Println("bestmove (none)")
			case "games":
				// Reports through the move how many games were started.
				fmt.Println([]string{"bestmove e2e4", "bestmove d2d4", "bestmove c2c4"}[min(games, 2)])
			default:
				fmt.Println("info depth 1 multipv 1 score cp 31 pv e2e4 e7e5")
				fmt.Println("info depth 1 multipv 2 score mate -2 pv d2d4")
				if len(moves) == 0 {
					fmt.Println("bestmove e2e4 ponder e7e5")
				} else {
					fmt.Println("bestmove g1f3")
				}
			}
		case "quit":
			return
		}
	}
}

func startFake(t *testing.T, mode string) *Session {
	t.Helper()
	t.Setenv(fakeEngineEnv, mode)
	s, err := NewSession(context.Background(), os.Args[0], Options{Threads: 1}, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSearchReturnsBestMove(t *testing.T) {
	s := startFake(t, "ok")
	resp, err := s.Search(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 50}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.BestMove != "e2e4" || resp.Ponder != "e7e5" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Candidates) != 2 || resp.Candidates[0].EvalCP != 31 || resp.Candidates[1].EvalCP != -30000 {
		t.Fatalf("candidates = %+v", resp.Candidates)
	}

	resp, err = s.Search(context.Background(), SearchRequest{Moves: []string{"e2e4", "e7e5"}, Limits: Limits{MoveTimeMillis: 50}})
	if err != nil || resp.BestMove != "g1f3" {
		t.Fatalf("second search = %+v, %v", resp, err)
	}
	if resp.Candidates[0].Depth != 1 || resp.Candidates[1].Mate != -2 {
		t.Fatalf("candidate details = %+v", resp.Candidates)
	}
	if err := s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
}

func TestSearchStartsNewGameOnUnrelatedPosition(t *testing.T) {
	s := startFake(t, "games")
	ctx := context.Background()
	limits := Limits{MoveTimeMillis: 10}
	search := func(moves ...string) string {
		t.Helper()
		resp, err := s.Search(ctx, SearchRequest{Moves: moves, Limits: limits})
		if err != nil {
			t.Fatalf("Search(%v): %v", moves, err)
		}
		return resp.BestMove
	}

	if got := search(); got != "e2e4" {
		t.Fatalf("first search = %s", got)
	}
	if got := search("e2e4", "e7e5"); got != "e2e4" {
		t.Fatalf("continuation started a new game: %s", got)
	}
	if got := search(); got != "d2d4" {
		t.Fatalf("unrelated position did not start a new game: %s", got)
	}
	if got := search("d2d4"); got != "d2d4" {
		t.Fatalf("continuation after reset started a new game: %s", got)
	}
	if got := search("e2e4"); got != "c2c4" {
		t.Fatalf("branching line did not start a new game: %s", got)
	}
}

func TestSearchNoMove(t *testing.T) {
	s := startFake(t, "none")
	_, err := s.Search(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 10}})
	if !errors.Is(err, ErrNoBestMove) {
		t.Fatalf("expected ErrNoBestMove, got %v", err)
	}
}

func TestSearchEngineCrash(t *testing.T) {
	s := startFake(t, "crash")
	done := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), SearchRequest{Limits: Limits{MoveTimeMillis: 10}})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrEngineExited) {
			t.Fatalf("expected ErrEngineExited, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("search did not notice the dead process")
	}
}

func TestPoolReusesProcess(t *testing.T) {
	t.Setenv(fakeEngineEnv, "ok")
	p := NewPool(PoolConfig{Capacity: 1})
	defer p.Close()
	ctx := context.Background()

	first, err := p.Acquire(ctx, os.Args[0], Options{})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(first, nil)
	second, err := p.Acquire(ctx, os.Args[0], Options{})
	if err != nil {
		t.Fatalf("Acquire again: %v", err)
	}
	if first != second {
		t.Fatalf("pool started a second process")
	}
	p.Release(second, errors.New("broken"))
	third, err := p.Acquire(ctx, os.Args[0], Options{})
	if err != nil {
		t.Fatalf("Acquire after discard: %v", err)
	}
	if third == second {
		t.Fatalf("discarded session handed out again")
	}
	p.Release(third, nil)
	if st := p.Stats(); st.Keys != 1 || st.Live != 1 || st.Idle != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Acquire(ctx, os.Args[0], Options{}); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("Acquire after Close: %v", err)
	}
}

func TestOptionCommandsOnlyWhenSet(t *testing.T) {
	if cmds := optionCommands(Options{}); len(cmds) != 0 {
		t.Fatalf("unset options produced %v", cmds)
	}
	skill := 0
	cmds := optionCommands(Options{Threads: 2, SkillLevel: &skill, Elo: 1500})
	joined := strings.Join(cmds, "")
	for _, want := range []string{"Threads value 2", "Skill Level value 0", "UCI_LimitStrength", "UCI_Elo value 1500"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %q", want, joined)
		}
	}
	if strings.Contains(joined, "Hash") {
		t.Fatalf("hash sent without being configured")
	}
}

func TestPositionCommand(t *testing.T) {
	if got := positionCommand("", []string{"e2e4"}); got != "position startpos moves e2e4\n" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := positionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

func TestGoCommand(t *testing.T) {
	if got, err := GoCommand(Limits{Depth: 12, NodeCap: 5000}); err != nil || got != "go depth 12 nodes 5000" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := GoCommand(Limits{}); !errors.Is(err, ErrNoLimits) {
		t.Fatalf("empty limits: %v", err)
	}
}

func TestParseInfo(t *testing.T) {
	slot, c, ok := parseInfo("info depth 18 seldepth 24 multipv 3 score cp -45 nodes 1000 pv g8f6 c2c4")
	if !ok || slot != 3 || c.Depth != 18 || c.EvalCP != -45 || c.Move != "g8f6" || len(c.Principal) != 2 {
		t.Fatalf("parseInfo = %d %+v %v", slot, c, ok)
	}
	if _, _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatalf("info string produced a candidate")
	}
	if _, c, ok := parseInfo("info depth 5 score mate 3 pv h5f7"); !ok || c.EvalCP != mateScore || c.Mate != 3 {
		t.Fatalf("mate line = %+v %v", c, ok)
	}
}

func TestParseBestMove(t *testing.T) {
	if best, ponder := parseBestMove("bestmove e7e8q ponder a2a1"); best != "e7e8q" || ponder != "a2a1" {
		t.Fatalf("got %q %q", best, ponder)
	}
	for _, null := range []string{"bestmove (none)", "bestmove 0000", "bestmove"} {
		if best, _ := parseBestMove(null); best != "" {
			t.Fatalf("%q gave %q", null, best)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	bad := 21
	if _, err := NewSession(context.Background(), os.Args[0], Options{SkillLevel: &bad}, nil); err == nil {
		t.Fatalf("skill 21 accepted")
	}
	if err := (Options{Threads: -1}).validate(); err == nil {
		t.Fatalf("negative threads accepted")
	}
	skill := 3
	if a, b := (Options{SkillLevel: &skill}).key(), (Options{}).key(); a == b {
		t.Fatalf("skill level not part of the key")
	}
}
