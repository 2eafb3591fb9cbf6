package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	handshakeTimeout = 4 * time.Second
	lineBuffer       = 64
)

var (
	ErrEngineExited = errors.New("engine process exited")
	ErrNoBestMove   = errors.New("engine returned no move")
)

type line struct {
	text string
	err  error
}

// Session is one running engine process. Searches are serialized.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan line
	done   chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	search sync.Mutex
	// game is the start position and moves of the last search; a request
	// that does not extend it starts a new game on the engine.
	game     []string
	searched bool
}

// NewSession starts binaryPath and completes the uci/isready handshake.
// ctx bounds the handshake only; the process runs until Close.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan line, lineBuffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("engine_binary", binaryPath), zap.Int("pid", cmd.Process.Pid)),
	}
	go s.pump(bufio.NewReader(stdout))

	if err := s.handshake(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
	Ponder     string
}

// Search sends the position and waits for bestmove. A request that is not a
// continuation of the previous one is preceded by ucinewgame.
func (s *Session) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	goCmd, err := GoCommand(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}

	s.search.Lock()
	defer s.search.Unlock()

	if s.searched && !s.continues(req) {
		if err := s.newGame(ctx); err != nil {
			return SearchResponse{}, err
		}
	}
	s.game = append([]string{req.FEN}, req.Moves...)
	s.searched = true

	position := positionCommand(req.FEN, req.Moves)
	if err := s.send(position); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	if err := s.send(goCmd + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	for {
		text, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Warn("uci_read_error",
				zap.String("position", strings.TrimSpace(position)),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case strings.HasPrefix(text, "info "):
			if slot, c, ok := parseInfo(text); ok {
				candidates[slot] = c
			}
		case strings.HasPrefix(text, "bestmove"):
			resp := SearchResponse{Candidates: byMultiPV(candidates)}
			resp.BestMove, resp.Ponder = parseBestMove(text)
			if resp.BestMove == "" {
				return resp, ErrNoBestMove
			}
			return resp, nil
		}
	}
}

func (s *Session) continues(req SearchRequest) bool {
	if len(s.game) == 0 || s.game[0] != req.FEN {
		return false
	}
	played := s.game[1:]
	return len(req.Moves) > len(played) && slices.Equal(req.Moves[:len(played)], played)
}

// NewGame resets the engine's game state and waits until it is ready.
func (s *Session) NewGame(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()
	return s.newGame(ctx)
}

func (s *Session) newGame(ctx context.Context) error {
	s.game, s.searched = nil, false
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	return s.EnsureReady(ctx)
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// Close asks the engine to quit, then kills it.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	_, _ = io.WriteString(s.stdin, "quit\n")
	_ = s.stdin.Close()
	s.mu.Unlock()

	_ = s.cmd.Process.Kill()
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func (s *Session) handshake(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range optionCommands(opt) {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.EnsureReady(initCtx)
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineExited
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		text, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(text, token) {
			return nil
		}
	}
}

// pump is the only reader of stdout. It ends when the process closes it.
func (s *Session) pump(r *bufio.Reader) {
	defer close(s.lines)
	for {
		text, err := r.ReadString('\n')
		if text = strings.TrimSpace(text); text != "" && !s.deliver(line{text: text}) {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.deliver(line{err: err})
			}
			return
		}
	}
}

func (s *Session) deliver(l line) bool {
	select {
	case s.lines <- l:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-s.lines:
		if !ok {
			return "", ErrEngineExited
		}
		return l.text, l.err
	}
}
