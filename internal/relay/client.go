package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-arena/pkg/arenadto"
)

const (
	maxErrorBody  = 512
	maxRetryAfter = 5 * time.Second
)

// HeaderProvider injects per-request headers.
type HeaderProvider func() map[string]string

// delivery says how hard a push tries before giving up.
type delivery int

const (
	bestEffort delivery = iota
	retried
)

// Client pushes snapshots and results to the presentation layer over HTTP.
type Client struct {
	endpoint string
	http     *fasthttp.Client
	headers  HeaderProvider

	timeout  time.Duration
	attempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithRetry sets the total number of attempts for retried pushes.
func WithRetry(attempts int) Option {
	return func(c *Client) { c.attempts = attempts }
}

// WithDial replaces the dialer, mostly for in-memory listeners in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http: &fasthttp.Client{
			Name:            "cheese-arena",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			MaxConnsPerHost: 8,
		},
		timeout:  5 * time.Second,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PushSnapshot sends the latest view of a session. Transient failures are
// retried; a later snapshot supersedes this one anyway.
func (c *Client) PushSnapshot(ctx context.Context, snap arenadto.Snapshot) error {
	return c.push(ctx, fasthttp.MethodPut, sessionPath(snap.SessionID, "snapshot"), snap, retried)
}

func (c *Client) PushResult(ctx context.Context, rec arenadto.GameRecord) error {
	return c.push(ctx, fasthttp.MethodPost, sessionPath(rec.SessionID, "result"), rec, retried)
}

// PushRejection reports a refused input. It is only a hint, so one attempt.
func (c *Client) PushRejection(ctx context.Context, rej arenadto.Rejection) error {
	return c.push(ctx, fasthttp.MethodPost, sessionPath(rej.SessionID, "rejections"), rej, bestEffort)
}

func sessionPath(id, leaf string) string {
	return "/sessions/" + url.PathEscape(strings.TrimSpace(id)) + "/" + leaf
}

func (c *Client) push(ctx context.Context, method, path string, body any, mode delivery) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(method)
	req.SetRequestURI(c.endpoint + path)
	req.Header.SetContentType("application/json")
	c.applyHeaders(req)
	req.SetBody(payload)

	budget := 1
	if mode == retried {
		budget = max(c.attempts, 1)
	}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, err := c.attempt(ctx, req)
		if err == nil {
			return nil
		}
		if wait < 0 || attempt >= budget {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		t := time.NewTimer(max(wait, backoffDuration(attempt)))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s %s: %w", method, path, err)
		case <-t.C:
		}
	}
}

// attempt performs one round trip. A negative wait means the failure is
// final; otherwise wait is the server's requested delay, possibly zero.
func (c *Client) attempt(ctx context.Context, req *fasthttp.Request) (time.Duration, error) {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return 0, err
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return 0, nil
	}
	body := resp.Body()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	err := &StatusError{Status: status, Body: string(body)}
	if !transient(status) {
		return -1, err
	}
	return retryAfter(resp), err
}

func (c *Client) applyHeaders(req *fasthttp.Request) {
	if c.headers == nil {
		return
	}
	for k, v := range c.headers() {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			req.Header.Set(k, v)
		}
	}
}

// StatusError is a non-2xx answer from the presenter.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("presenter error: status=%d body=%s", e.Status, e.Body)
}

// backoffDuration doubles from 100ms and caps at 3.2s.
func backoffDuration(attempt int) time.Duration {
	step := min(max(attempt, 1), 6) - 1
	return (100 * time.Millisecond) << step
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(resp *fasthttp.Response) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(string(resp.Header.Peek(fasthttp.HeaderRetryAfter))))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func transient(status int) bool {
	switch status {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}
