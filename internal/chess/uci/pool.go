package uci

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("engine pool closed")
	errAtCapacity = errors.New("process bucket at capacity")
)

type PoolConfig struct {
	// Capacity is the number of live processes allowed per binary+options key.
	Capacity int
	Logger   *zap.Logger
}

// Pool keeps engine processes alive between searches so a game does not pay
// the process start-up and handshake on every move.
type Pool struct {
	capacity int
	logger   *zap.Logger

	mu      sync.Mutex
	closed  bool
	buckets map[string]*bucket
	owner   map[*Session]*bucket
}

// PoolStats is a point-in-time view for logs.
type PoolStats struct {
	Keys int
	Live int
	Idle int
}

func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		capacity: max(cfg.Capacity, 1),
		logger:   logger,
		buckets:  make(map[string]*bucket),
		owner:    make(map[*Session]*bucket),
	}
}

// Acquire hands out an idle process for binaryPath+opt, starts one while
// under capacity, or waits for a Release.
func (p *Pool) Acquire(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	b, err := p.bucketFor(binaryPath, opt)
	if err != nil {
		return nil, err
	}
	for {
		s, err := b.next(ctx, p.logger)
		if err != nil {
			return nil, err
		}
		if s.fresh {
			p.own(s.session, b)
			return s.session, nil
		}
		if err := s.session.EnsureReady(ctx); err != nil {
			p.logger.Warn("engine_pool_stale", zap.String("key", b.key), zap.Error(err))
			b.discard(s.session)
			continue
		}
		p.own(s.session, b)
		return s.session, nil
	}
}

// Release returns session to its bucket. A non-nil err marks the process as
// unusable and it is closed instead.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}
	p.mu.Lock()
	b, ok := p.owner[session]
	delete(p.owner, session)
	closed := p.closed
	p.mu.Unlock()

	switch {
	case !ok:
		_ = session.Close()
	case err != nil || closed || !b.park(session):
		b.discard(session)
	}
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PoolStats{Keys: len(p.buckets)}
	for _, b := range p.buckets {
		b.mu.Lock()
		st.Live += b.live
		b.mu.Unlock()
		st.Idle += len(b.idle)
	}
	return st
}

// Close stops idle processes. Sessions still out are closed on Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	buckets := make([]*bucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.mu.Unlock()

	var errs []error
	for _, b := range buckets {
		errs = append(errs, b.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) own(s *Session, b *bucket) {
	p.mu.Lock()
	p.owner[s] = b
	p.mu.Unlock()
}

func (p *Pool) bucketFor(binaryPath string, opt Options) (*bucket, error) {
	key := binaryPath + "|" + opt.key()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{
			key:        key,
			binaryPath: binaryPath,
			opt:        opt,
			capacity:   p.capacity,
			idle:       make(chan *Session, p.capacity),
		}
		p.buckets[key] = b
	}
	return b, nil
}

// bucket holds the processes of one binary+options key.
type bucket struct {
	key        string
	binaryPath string
	opt        Options
	capacity   int

	mu   sync.Mutex
	live int
	idle chan *Session
}

type handout struct {
	session *Session
	fresh   bool
}

func (b *bucket) next(ctx context.Context, logger *zap.Logger) (handout, error) {
	select {
	case s := <-b.idle:
		return handout{session: s}, nil
	default:
	}

	s, err := b.start(ctx, logger)
	switch {
	case err == nil:
		return handout{session: s, fresh: true}, nil
	case !errors.Is(err, errAtCapacity):
		return handout{}, err
	}

	select {
	case s := <-b.idle:
		return handout{session: s}, nil
	case <-ctx.Done():
		return handout{}, ctx.Err()
	}
}

func (b *bucket) start(ctx context.Context, logger *zap.Logger) (*Session, error) {
	b.mu.Lock()
	if b.live >= b.capacity {
		b.mu.Unlock()
		return nil, errAtCapacity
	}
	b.live++
	b.mu.Unlock()

	s, err := NewSession(ctx, b.binaryPath, b.opt, logger)
	if err != nil {
		b.release()
		return nil, err
	}
	return s, nil
}

func (b *bucket) park(s *Session) bool {
	select {
	case b.idle <- s:
		return true
	default:
		return false
	}
}

func (b *bucket) discard(s *Session) {
	_ = s.Close()
	b.release()
}

func (b *bucket) drain() []error {
	var errs []error
	for {
		select {
		case s := <-b.idle:
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
			b.release()
		default:
			return errs
		}
	}
}

func (b *bucket) release() {
	b.mu.Lock()
	if b.live > 0 {
		b.live--
	}
	b.mu.Unlock()
}
