package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler, opts ...Option) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	opts = append([]Option{WithDial(func(string) (net.Conn, error) { return ln.Dial() })}, opts...)
	return NewClient("http://presenter/", opts...)
}

func TestPushSnapshotRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	var gotPath, gotMethod string
	var got arenadto.Snapshot
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if calls.Add(1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		gotPath = string(ctx.Path())
		gotMethod = string(ctx.Method())
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}, WithHeaderProvider(func() map[string]string { return map[string]string{"X-Arena": "1"} }))

	snap := arenadto.Snapshot{SessionID: "abc", Seq: 7, FEN: "8/8/8/8/8/8/8/K6k w - - 0 1"}
	if err := c.PushSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("PushSnapshot: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
	if gotMethod != "PUT" || gotPath != "/sessions/abc/snapshot" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if got.Seq != 7 || got.FEN != snap.FEN {
		t.Fatalf("body = %+v", got)
	}
}

func TestPushRejectionNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
		ctx.SetBodyString("down")
	})
	err := c.PushRejection(context.Background(), arenadto.Rejection{SessionID: "abc", Code: "illegal_move"})
	var se *StatusError
	if !errors.As(err, &se) || se.Status != fasthttp.StatusBadGateway || se.Body != "down" {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestPushResultClientErrorStops(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		calls.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
	})
	err := c.PushResult(context.Background(), arenadto.GameRecord{SessionID: "abc"})
	if err == nil || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != 100*time.Millisecond || backoffDuration(3) != 400*time.Millisecond {
		t.Fatalf("unexpected backoff curve")
	}
	if backoffDuration(99) != backoffDuration(6) {
		t.Fatalf("backoff not capped")
	}
}

func TestInputStreamForwardsEvents(t *testing.T) {
	events := []arenadto.InputEvent{
		{Type: arenadto.InputSelect, Square: "e2"},
		{Type: ""},
		{Type: arenadto.InputDrop, Square: "e4"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for _, ev := range events {
			if err := wsjson.Write(r.Context(), conn, ev); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var states []StreamState
	stream := NewInputStream("ws"+strings.TrimPrefix(srv.URL, "http"), WithReconnect(0))
	stream.OnStateChange(func(s StreamState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	out := make(chan arenadto.InputEvent, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := stream.Run(ctx, out)
	if !errors.Is(err, ErrStreamFailed) {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	var got []arenadto.InputEvent
	for ev := range out {
		got = append(got, ev)
	}
	if len(got) != 2 || got[0].Square != "e2" || got[1].Type != arenadto.InputDrop {
		t.Fatalf("events = %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[1] != StreamConnected || states[len(states)-1] != StreamFailed {
		t.Fatalf("states = %v", states)
	}
}

func TestInputStreamStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		<-r.Context().Done()
	}))
	defer srv.Close()

	stream := NewInputStream("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx, make(chan arenadto.InputEvent)) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if stream.State() != StreamDisconnected {
		t.Fatalf("state = %v", stream.State())
	}
}

func TestPublisherKeepsLatest(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []uint64
	sink := SinkFunc(func(ctx context.Context, snap arenadto.Snapshot) error {
		if snap.Seq == 1 {
			<-release
		}
		mu.Lock()
		seen = append(seen, snap.Seq)
		mu.Unlock()
		return nil
	})
	p := NewPublisher(nil, sink)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Offer(arenadto.Snapshot{Seq: 1})
	time.Sleep(20 * time.Millisecond)
	for seq := uint64(2); seq <= 5; seq++ {
		p.Offer(arenadto.Snapshot{Seq: seq})
	}
	close(release)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 5 {
		t.Fatalf("delivered = %v", seen)
	}
	if p.Dropped() != 3 {
		t.Fatalf("dropped = %d", p.Dropped())
	}
}

func TestRetryAfterHeader(t *testing.T) {
	var resp fasthttp.Response
	if retryAfter(&resp) != 0 {
		t.Fatalf("missing header gave a delay")
	}
	resp.Header.Set("Retry-After", "2")
	if got := retryAfter(&resp); got != 2*time.Second {
		t.Fatalf("retryAfter = %s", got)
	}
	resp.Header.Set("Retry-After", "3600")
	if got := retryAfter(&resp); got != maxRetryAfter {
		t.Fatalf("retryAfter not capped: %s", got)
	}
	resp.Header.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if retryAfter(&resp) != 0 {
		t.Fatalf("http-date should be ignored")
	}
}
