package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

type StreamState int

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

var ErrStreamFailed = errors.New("input stream: reconnect attempts exhausted")

type StreamOption func(*InputStream)

func WithReconnect(maxAttempts int) StreamOption {
	return func(s *InputStream) { s.maxReconnect = maxAttempts }
}

func WithPingInterval(d time.Duration) StreamOption {
	return func(s *InputStream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithStreamLogger(l *zap.Logger) StreamOption {
	return func(s *InputStream) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithStreamHeaders(h HeaderProvider) StreamOption {
	return func(s *InputStream) { s.headers = h }
}

// InputStream reads input events from a websocket and forwards them to the
// session's input channel. It reconnects with backoff when the socket drops.
type InputStream struct {
	wsURL        string
	headers      HeaderProvider
	logger       *zap.Logger
	maxReconnect int
	pingInterval time.Duration

	mu       sync.RWMutex
	state    StreamState
	stateCbs []func(StreamState)
}

func NewInputStream(wsURL string, opts ...StreamOption) *InputStream {
	s := &InputStream{
		wsURL:        wsURL,
		logger:       zap.NewNop(),
		maxReconnect: 5,
		pingInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InputStream) OnStateChange(cb func(StreamState)) {
	if cb == nil {
		return
	}
	s.mu.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.mu.Unlock()
}

func (s *InputStream) State() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Run connects and forwards events to out until ctx is done or reconnects
// are exhausted. It returns nil on cancellation.
func (s *InputStream) Run(ctx context.Context, out chan<- arenadto.InputEvent) error {
	failures := 0
	for {
		s.setState(StreamConnecting)
		conn, err := s.dial(ctx)
		if err == nil {
			failures = 0
			s.setState(StreamConnected)
			s.logger.Info("input_stream_connected", zap.String("url", s.wsURL))
			err = s.listen(ctx, conn, out)
		}
		if ctx.Err() != nil {
			s.setState(StreamDisconnected)
			return nil
		}
		failures++
		s.logger.Warn("input_stream_dropped", zap.Int("attempt", failures), zap.Error(err))
		if failures > s.maxReconnect {
			s.setState(StreamFailed)
			return ErrStreamFailed
		}
		s.setState(StreamReconnecting)
		if sleepWithContext(ctx, backoffDuration(failures)) != nil {
			s.setState(StreamDisconnected)
			return nil
		}
	}
}

func (s *InputStream) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	return conn, err
}

func (s *InputStream) listen(ctx context.Context, conn *websocket.Conn, out chan<- arenadto.InputEvent) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(connCtx, conn, cancel)
	defer conn.Close(websocket.StatusNormalClosure, "close")

	for {
		var ev arenadto.InputEvent
		if err := wsjson.Read(connCtx, conn, &ev); err != nil {
			return err
		}
		if strings.TrimSpace(string(ev.Type)) == "" {
			s.logger.Debug("input_stream_skip", zap.String("reason", "missing type"))
			continue
		}
		select {
		case out <- ev:
		case <-connCtx.Done():
			return connCtx.Err()
		}
	}
}

// pingLoop cancels the connection after two missed pongs in a row.
func (s *InputStream) pingLoop(ctx context.Context, conn *websocket.Conn, drop context.CancelFunc) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				misses = 0
				continue
			}
			misses++
			if misses >= 2 {
				s.logger.Warn("input_stream_ping_failed", zap.Error(err))
				drop()
				return
			}
		}
	}
}

func (s *InputStream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	cbs := append([]func(StreamState)(nil), s.stateCbs...)
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(state)
	}
}

func (s *InputStream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headers == nil {
		return hdr
	}
	for k, v := range s.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
