package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/winchance-agent/internal/domain"
	"github.com/park285/winchance-agent/internal/overlay"
)

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

// StatusError is a non-2xx answer from the bridge.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("host bridge error: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BearerHeaders returns a provider for the bridge token and the agent
// session id. Empty values are skipped.
func BearerHeaders(token, session string) HeaderProvider {
	return func() map[string]string {
		m := map[string]string{}
		if token != "" {
			m["Authorization"] = "Bearer " + token
		}
		if session != "" {
			m["X-Agent-Session"] = session
		}
		return m
	}
}

func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if _, err := c.doJSON(ctx, fasthttp.MethodGet, "/config", nil, &cfg, true); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Capture reads the live battle entities. The bridge answers 204 or 404
// while the player entity is not ready; that is an empty snapshot.
func (c *Client) Capture(ctx context.Context) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	status, err := c.doJSON(ctx, fasthttp.MethodGet, "/snapshot", nil, &snap, false)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == fasthttp.StatusNotFound {
			return &domain.Snapshot{TakenAt: time.Now()}, nil
		}
		return nil, err
	}
	if status == fasthttp.StatusNoContent {
		return &domain.Snapshot{TakenAt: time.Now()}, nil
	}
	snap.TakenAt = time.Now()
	return &snap, nil
}

// QueryResults asks the client's results cache for one arena.
func (c *Client) QueryResults(ctx context.Context, id domain.ArenaID) (int, *domain.RawBattleResult, error) {
	var reply ResultsReply
	if _, err := c.doJSON(ctx, fasthttp.MethodGet, "/results/"+id.String(), nil, &reply, true); err != nil {
		return 0, nil, err
	}
	res, err := reply.Decode()
	if err != nil {
		return reply.Code, nil, err
	}
	return reply.Code, res, nil
}

func (c *Client) PlayerInfo(ctx context.Context) (*domain.PlayerInfo, error) {
	var info domain.PlayerInfo
	status, err := c.doJSON(ctx, fasthttp.MethodGet, "/player", nil, &info, true)
	if err != nil {
		return nil, err
	}
	if status == fasthttp.StatusNoContent {
		return nil, nil
	}
	return &info, nil
}

func (c *Client) DrawOverlay(ctx context.Context, f overlay.Frame) error {
	_, err := c.doJSON(ctx, fasthttp.MethodPost, "/overlay", OverlayRequest{Type: "overlay", Frame: f}, nil, false)
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) (int, error) {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return 0, fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return 0, lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := &StatusError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return status, err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return status, lastErr
			}
			continue
		}

		if out != nil && status != fasthttp.StatusNoContent && len(resp.Body()) > 0 {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return status, fmt.Errorf("decode response: %w", err)
			}
		}
		return status, nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return 0, lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
