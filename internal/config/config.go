package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/cheese-arena/internal/chess/uci"
	"github.com/park285/cheese-arena/internal/obslog"
)

// ConfigFile is the path searched under the XDG config directories.
const ConfigFile = "cheese-arena/config.yaml"

const (
	SlotHuman  = "human"
	SlotEngine = "engine"
)

type InvalidConfig struct {
	Field  string
	Reason string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

type EngineSection struct {
	Path    string      `yaml:"path"`
	Mode    string      `yaml:"mode"` // per_call | per_game
	Options uci.Options `yaml:"options"`
	// Book is an optional polyglot file used for the first BookPlies plies.
	Book      string `yaml:"book"`
	BookPlies int    `yaml:"book_plies"`
}

type SlotConfig struct {
	Kind   string        `yaml:"kind"` // human | engine
	Name   string        `yaml:"name"`
	Engine EngineSection `yaml:"engine"`
}

func (s SlotConfig) IsEngine() bool { return s.Kind == SlotEngine }

type PresenterConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Retry   int               `yaml:"retry"`
	Headers map[string]string `yaml:"headers"`
}

type InputConfig struct {
	WSURL     string `yaml:"ws_url"`
	Reconnect int    `yaml:"reconnect"`
	Buffer    int    `yaml:"buffer"`
}

type ArenaConfig struct {
	Games       int  `yaml:"games"`
	Concurrency int  `yaml:"concurrency"`
	SwapColors  bool `yaml:"swap_colors"`
}

type Config struct {
	White SlotConfig `yaml:"white"`
	Black SlotConfig `yaml:"black"`

	StartFEN    string        `yaml:"start_fen"`
	TimeControl string        `yaml:"time_control"`
	MoveBudget  time.Duration `yaml:"move_budget"`
	Tick        time.Duration `yaml:"tick"`
	Drag        bool          `yaml:"drag"`
	Orientation string        `yaml:"orientation"`

	Presenter   PresenterConfig `yaml:"presenter"`
	Input       InputConfig     `yaml:"input"`
	RedisURL    string          `yaml:"redis_url"`
	SnapshotTTL time.Duration   `yaml:"snapshot_ttl"`
	DatabaseURL string          `yaml:"database_url"`
	MessagesDir string          `yaml:"messages_dir"`

	Arena ArenaConfig    `yaml:"arena"`
	Log   obslog.Options `yaml:"log"`

	// Source is the file the config was read from, empty for defaults only.
	Source string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		White:       SlotConfig{Kind: SlotHuman, Name: "white"},
		Black:       SlotConfig{Kind: SlotEngine, Name: "black", Engine: EngineSection{Mode: "per_game"}},
		TimeControl: "5+0",
		MoveBudget:  time.Second,
		Tick:        50 * time.Millisecond,
		Drag:        true,
		Orientation: "white",
		Presenter:   PresenterConfig{Timeout: 5 * time.Second, Retry: 3},
		Input:       InputConfig{Reconnect: 5, Buffer: 64},
		SnapshotTTL: 24 * time.Hour,
		Arena:       ArenaConfig{Games: 2, Concurrency: 2, SwapColors: true},
		Log:         obslog.DefaultOptions(),
	}
}

// Load reads path, or the XDG config file when path is empty, applies
// environment overrides and validates. A missing XDG file is not an error; a
// missing explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		if found, err := xdg.SearchConfigFile(ConfigFile); err == nil {
			path = found
		}
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Source = path
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, side := range []struct {
		prefix string
		slot   *SlotConfig
	}{{"ARENA_WHITE", &c.White}, {"ARENA_BLACK", &c.Black}} {
		if v := getenv(side.prefix); v != "" {
			side.slot.Kind = strings.ToLower(v)
		}
		if v := getenv(side.prefix + "_ENGINE"); v != "" {
			side.slot.Kind = SlotEngine
			side.slot.Engine.Path = v
		}
		if v := getenv(side.prefix + "_ENGINE_MODE"); v != "" {
			side.slot.Engine.Mode = v
		}
		if v := getenv(side.prefix + "_ENGINE_BOOK"); v != "" {
			side.slot.Engine.Book = v
		}
		if v := getenv(side.prefix + "_NAME"); v != "" {
			side.slot.Name = v
		}
	}

	if v := getenv("ARENA_START_FEN"); v != "" {
		c.StartFEN = v
	}
	if v := getenv("ARENA_TIME_CONTROL"); v != "" {
		c.TimeControl = v
	}
	if v := getenv("ARENA_ORIENTATION"); v != "" {
		c.Orientation = v
	}
	if v := getenv("ARENA_PRESENTER_URL"); v != "" {
		c.Presenter.URL = v
	}
	if v := getenv("ARENA_INPUT_WS_URL"); v != "" {
		c.Input.WSURL = v
	}
	if v := getenv("ARENA_MESSAGES_DIR"); v != "" {
		c.MessagesDir = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ARENA_MOVE_BUDGET", &c.MoveBudget},
		{"ARENA_TICK", &c.Tick},
		{"ARENA_SNAPSHOT_TTL", &c.SnapshotTTL},
	}
	for _, d := range durations {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return &InvalidConfig{Field: d.key, Reason: err.Error()}
		}
		*d.dst = parsed
	}

	if v := getenv("ARENA_DRAG"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &InvalidConfig{Field: "ARENA_DRAG", Reason: err.Error()}
		}
		c.Drag = b
	}
	if v := getenv("ARENA_GAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Arena.Games = n
		}
	}
	if v := getenv("ARENA_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Arena.Concurrency = n
		}
	}
	c.Log.ApplyEnv()
	return nil
}

func (c *Config) normalize() {
	for _, s := range []*SlotConfig{&c.White, &c.Black} {
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = SlotHuman
		}
		s.Engine.Path = strings.TrimSpace(s.Engine.Path)
		s.Engine.Book = strings.TrimSpace(s.Engine.Book)
		if s.Engine.Mode == "" {
			s.Engine.Mode = "per_game"
		}
	}
	c.Orientation = strings.ToLower(strings.TrimSpace(c.Orientation))
	c.Presenter.URL = strings.TrimRight(strings.TrimSpace(c.Presenter.URL), "/")
	if c.Input.Buffer <= 0 {
		c.Input.Buffer = 64
	}
}

func (c *Config) Validate() error {
	for _, side := range []struct {
		name string
		slot SlotConfig
	}{{"white", c.White}, {"black", c.Black}} {
		switch side.slot.Kind {
		case SlotHuman:
		case SlotEngine:
			if side.slot.Engine.Path == "" {
				return &InvalidConfig{Field: side.name + ".engine.path", Reason: "required for an engine slot"}
			}
			if m := side.slot.Engine.Mode; m != "per_call" && m != "per_game" {
				return &InvalidConfig{Field: side.name + ".engine.mode", Reason: fmt.Sprintf("unknown process mode %q", m)}
			}
			if side.slot.Engine.BookPlies < 0 {
				return &InvalidConfig{Field: side.name + ".engine.book_plies", Reason: "must not be negative"}
			}
		default:
			return &InvalidConfig{Field: side.name + ".kind", Reason: fmt.Sprintf("must be human or engine, got %q", side.slot.Kind)}
		}
	}
	if c.MoveBudget <= 0 {
		return &InvalidConfig{Field: "move_budget", Reason: "must be positive"}
	}
	if c.Tick <= 0 {
		return &InvalidConfig{Field: "tick", Reason: "must be positive"}
	}
	switch c.Orientation {
	case "", "white", "black":
	default:
		return &InvalidConfig{Field: "orientation", Reason: "must be white or black"}
	}
	if c.Arena.Concurrency <= 0 || c.Arena.Games <= 0 {
		return &InvalidConfig{Field: "arena", Reason: "games and concurrency must be positive"}
	}
	return nil
}

// HumanPlays reports whether at least one slot needs interactive input.
func (c *Config) HumanPlays() bool { return !c.White.IsEngine() || !c.Black.IsEngine() }

func getenv(k string) string { return strings.TrimSpace(os.Getenv(k)) }
