package relay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

// SnapshotSink receives published snapshots.
type SnapshotSink interface {
	PushSnapshot(ctx context.Context, snap arenadto.Snapshot) error
}

type SinkFunc func(ctx context.Context, snap arenadto.Snapshot) error

func (f SinkFunc) PushSnapshot(ctx context.Context, snap arenadto.Snapshot) error { return f(ctx, snap) }

// Publisher decouples the control goroutine from slow sinks. Offer never
// blocks; only the newest pending snapshot is kept, so a stalled presenter
// sees a gap rather than stalling the game.
type Publisher struct {
	sinks   []SnapshotSink
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending *arenadto.Snapshot
	dropped uint64
	wake    chan struct{}
}

func NewPublisher(logger *zap.Logger, sinks ...SnapshotSink) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		sinks:   sinks,
		logger:  logger,
		timeout: 3 * time.Second,
		wake:    make(chan struct{}, 1),
	}
}

// Offer queues snap, replacing any snapshot not yet delivered.
func (p *Publisher) Offer(snap arenadto.Snapshot) {
	p.mu.Lock()
	if p.pending != nil {
		p.dropped++
	}
	p.pending = &snap
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Dropped counts snapshots superseded before delivery.
func (p *Publisher) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Run delivers snapshots until ctx is done, then flushes the last one.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return nil
		case <-p.wake:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.mu.Unlock()
	if snap == nil {
		return
	}
	for _, sink := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := sink.PushSnapshot(sctx, *snap)
		cancel()
		if err != nil {
			p.logger.Warn("snapshot_push_failed",
				zap.String("session_id", snap.SessionID),
				zap.Uint64("seq", snap.Seq),
				zap.Error(err),
			)
		}
	}
}
