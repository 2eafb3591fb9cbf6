package arenabuilder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	corechess "github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/chess/book"
	"github.com/park285/cheese-arena/internal/chess/channel"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/game"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/relay"
	"github.com/park285/cheese-arena/internal/store"
)

// Deps is everything one interactive session needs. Optional parts are nil
// when their config is empty.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	Catalog   *msgcat.Catalog
	Engines   []*corechess.Engine
	Session   *game.Session
	Publisher *relay.Publisher
	Presenter *relay.Client
	Inputs    *relay.InputStream
	Snapshots *store.SnapshotStore
	Repo      store.Repository
}

// New builds a session from cfg. root is handed to engine channels and
// should live until process shutdown.
func New(root context.Context, cfg *config.Config, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{Config: cfg, Logger: logger}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.Catalog = cat

	white, black, err := NewEngines(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, e := range []*corechess.Engine{white, black} {
		if e != nil {
			d.Engines = append(d.Engines, e)
		}
	}

	gcfg, err := ControllerConfig(cfg, logger)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	gcfg.White = Slot(root, cfg.White, white, cfg, logger)
	gcfg.Black = Slot(root, cfg.Black, black, cfg, logger)
	ctrl, err := game.NewController(gcfg)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("build controller: %w", err)
	}
	d.Session = game.NewSession(ctrl,
		game.WithTimeControl(cfg.TimeControl),
		game.WithResultText(ResultText(cat)),
		game.WithSessionLogger(logger),
	)

	var sinks []relay.SnapshotSink
	if cfg.Presenter.URL != "" {
		headers := cfg.Presenter.Headers
		d.Presenter = relay.NewClient(cfg.Presenter.URL,
			relay.WithTimeout(cfg.Presenter.Timeout),
			relay.WithRetry(cfg.Presenter.Retry),
			relay.WithHeaderProvider(func() map[string]string { return headers }),
		)
		sinks = append(sinks, d.Presenter)
	}
	if cfg.RedisURL != "" {
		snaps, err := store.OpenSnapshotStore(root, cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init snapshot store: %w", err)
		}
		d.Snapshots = snaps
		sinks = append(sinks, relay.SinkFunc(snaps.Save))
	}
	d.Publisher = relay.NewPublisher(logger, sinks...)

	if cfg.DatabaseURL != "" {
		repo, err := store.OpenPostgres(root, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init repository: %w", err)
		}
		d.Repo = repo
	} else {
		logger.Info("repository_memory", zap.String("reason", "DATABASE_URL not set"))
		d.Repo = store.NewMemoryRepository()
	}

	if cfg.Input.WSURL != "" {
		d.Inputs = relay.NewInputStream(cfg.Input.WSURL,
			relay.WithReconnect(cfg.Input.Reconnect),
			relay.WithStreamLogger(logger),
		)
	}
	return d, nil
}

// NewEngines starts nothing yet; it validates the binaries of engine slots.
// A human slot yields a nil engine.
func NewEngines(cfg *config.Config, logger *zap.Logger) (white, black *corechess.Engine, err error) {
	white, err = newEngine(cfg.White, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("white engine: %w", err)
	}
	black, err = newEngine(cfg.Black, logger)
	if err != nil {
		if white != nil {
			_ = white.Close()
		}
		return nil, nil, fmt.Errorf("black engine: %w", err)
	}
	return white, black, nil
}

func newEngine(slot config.SlotConfig, logger *zap.Logger) (*corechess.Engine, error) {
	if !slot.IsEngine() {
		return nil, nil
	}
	mode, err := corechess.ParseProcessMode(slot.Engine.Mode)
	if err != nil {
		return nil, err
	}
	var openings *book.Book
	if slot.Engine.Book != "" {
		openings, err = book.Open(slot.Engine.Book, slot.Engine.BookPlies, time.Now().UnixNano())
		if err != nil {
			return nil, err
		}
	}
	return corechess.NewEngine(corechess.EngineConfig{
		Name:       EngineName(slot),
		BinaryPath: slot.Engine.Path,
		Mode:       mode,
		Options:    slot.Engine.Options,
		Book:       openings,
	}, logger)
}

// EngineName is the configured name, else the binary's base name.
func EngineName(slot config.SlotConfig) string {
	if n := strings.TrimSpace(slot.Name); n != "" {
		return n
	}
	return filepath.Base(slot.Engine.Path)
}

// Slot turns a slot config into a game slot. Engine slots get a fresh
// channel bound to root; channels are never shared between games.
func Slot(root context.Context, slot config.SlotConfig, engine *corechess.Engine, cfg *config.Config, logger *zap.Logger) game.Slot {
	if engine == nil {
		return game.HumanSlot{Name: slot.Name}
	}
	return game.EngineSlot{Channel: NewChannel(root, engine, cfg, logger)}
}

func NewChannel(root context.Context, p channel.MoveProvider, cfg *config.Config, logger *zap.Logger) *channel.Channel {
	name := "engine"
	if named, ok := p.(interface{ Name() string }); ok {
		name = named.Name()
	}
	return channel.New(root, name, p, cfg.MoveBudget, channel.WithLogger(logger))
}

// ControllerConfig maps the session options of cfg; slots are left empty.
func ControllerConfig(cfg *config.Config, logger *zap.Logger) (game.Config, error) {
	initial, increment, err := clock.ParseTimeControl(cfg.TimeControl)
	if err != nil {
		return game.Config{}, err
	}
	orientation := nchess.White
	if c, ok := game.ParseColor(cfg.Orientation); ok {
		orientation = c
	}
	return game.Config{
		StartFEN:    cfg.StartFEN,
		Initial:     initial,
		Increment:   increment,
		DragEnabled: cfg.Drag,
		Orientation: orientation,
		Logger:      logger,
	}, nil
}

// ResultText renders result banners from the catalog.
func ResultText(cat *msgcat.Catalog) func(game.Result) string {
	return func(r game.Result) string {
		return cat.ResultBanner(msgcat.ResultData{
			Kind:   string(r.Kind),
			Winner: game.ColorName(r.Winner),
			Side:   game.ColorName(r.Side),
			Detail: r.Detail,
		})
	}
}

// Close releases engines and stores. Safe to call on a partial Deps.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, e := range d.Engines {
		errs = append(errs, e.Close())
	}
	if d.Snapshots != nil {
		errs = append(errs, d.Snapshots.Close())
	}
	if d.Repo != nil {
		errs = append(errs, d.Repo.Close())
	}
	return errors.Join(errs...)
}
