package arenabuilder

import (
	"context"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/msgcat"
)

func humanConfig() *config.Config {
	cfg := config.Default()
	cfg.White = config.SlotConfig{Kind: config.SlotHuman, Name: "alice"}
	cfg.Black = config.SlotConfig{Kind: config.SlotHuman, Name: "bob"}
	cfg.TimeControl = "3+2"
	cfg.Orientation = "black"
	return cfg
}

func TestNewHumanSession(t *testing.T) {
	d, err := New(context.Background(), humanConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.Session == nil || d.Publisher == nil || d.Repo == nil {
		t.Fatalf("deps = %+v", d)
	}
	if d.Presenter != nil || d.Inputs != nil || d.Snapshots != nil || len(d.Engines) != 0 {
		t.Fatalf("optional parts built without config: %+v", d)
	}
	ctrl := d.Session.Controller
	if ctrl.Slot(nchess.White).Label() != "alice" || ctrl.Remaining(nchess.Black) != 3*time.Minute {
		t.Fatalf("controller not configured")
	}
	if d.Session.TimeControl != "3+2" {
		t.Fatalf("time control = %q", d.Session.TimeControl)
	}
}

func TestNewRejectsMissingEngineBinary(t *testing.T) {
	cfg := humanConfig()
	cfg.Black = config.SlotConfig{Kind: config.SlotEngine, Engine: config.EngineSection{Path: "/nonexistent/engine-bin", Mode: "per_game"}}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatalf("missing engine binary accepted")
	}
}

func TestControllerConfigBadTimeControl(t *testing.T) {
	cfg := humanConfig()
	cfg.TimeControl = "fast"
	if _, err := ControllerConfig(cfg, nil); err == nil {
		t.Fatalf("bad time control accepted")
	}
}

func TestResultText(t *testing.T) {
	text := ResultText(msgcat.MustDefault())
	got := text(game.Result{Kind: game.ResultTimeForfeit, Side: nchess.White, Winner: nchess.Black})
	if got != "White ran out of time. Black wins." {
		t.Fatalf("banner = %q", got)
	}
}

func TestEngineName(t *testing.T) {
	if n := EngineName(config.SlotConfig{Engine: config.EngineSection{Path: "/usr/games/stockfish"}}); n != "stockfish" {
		t.Fatalf("name = %q", n)
	}
	if n := EngineName(config.SlotConfig{Name: "sf-16"}); n != "sf-16" {
		t.Fatalf("name = %q", n)
	}
}
