// Package apiclient delivers battle results to the collection service.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/apiconfig"
	"github.com/park285/winchance-agent/internal/metrics"
	"github.com/park285/winchance-agent/pkg/battledto"
)

const (
	pathBattles    = "/api/battles"
	pathBattlesRaw = "/api/BattlesRaw"
	pathRegister   = "/api/auth/register"
	pathHealth     = "/api/health"
)

var (
	ErrRejected  = errors.New("delivery rejected by server")
	ErrExhausted = errors.New("delivery attempts exhausted")
	ErrNoToken   = errors.New("registration response carried no token")
)

// idempotencyNS scopes the per-arena Idempotency-Key values.
var idempotencyNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("winchance/battles"))

// IdempotencyKey is stable for an arena id, so re-deliveries of the same
// battle collapse server-side.
func IdempotencyKey(kind, arenaID string) string {
	return uuid.NewSHA1(idempotencyNS, []byte(kind+":"+arenaID)).String()
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	cfg     *apiconfig.Store
	logger  *zap.Logger

	timeout       time.Duration
	healthTimeout time.Duration
	retries       int
	retryDelay    time.Duration

	rootCtx context.Context
	wg      sync.WaitGroup
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry sets the number of retries after the first attempt and the
// fixed pause between attempts.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithContext bounds background deliveries; cancelling it abandons retries.
func WithContext(ctx context.Context) Option {
	return func(c *Client) { c.rootCtx = ctx }
}

func New(baseURL string, cfg *apiconfig.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 8},
		cfg:           cfg,
		logger:        zap.NewNop(),
		timeout:       10 * time.Second,
		healthTimeout: 5 * time.Second,
		retries:       3,
		retryDelay:    5 * time.Second,
		rootCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enabled() bool { return c.cfg != nil && c.cfg.Get().Enabled }

// Wait blocks until in-flight deliveries finish or ctx is done.
func (c *Client) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendBattleResult posts rec in the background. onSuccess runs on the
// delivery goroutine after a 2xx; failures are only logged.
func (c *Client) SendBattleResult(rec *battledto.BattleResult, onSuccess func()) {
	if rec == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		c.logger.Error("battle_result_marshal_failed", zap.String("arena_id", rec.ArenaUniqueID), zap.Error(err))
		return
	}
	key := IdempotencyKey("battle", rec.ArenaUniqueID)
	c.spawn(pathBattles, body, key, rec.ArenaUniqueID, onSuccess)
}

// SendRawBattleResult posts the audit copy of a result in the background.
func (c *Client) SendRawBattleResult(raw battledto.RawBattle) {
	body, err := json.Marshal(raw)
	if err != nil {
		c.logger.Error("raw_result_marshal_failed", zap.String("arena_id", raw.BattleID.String()), zap.Error(err))
		return
	}
	c.spawn(pathBattlesRaw, body, IdempotencyKey("raw", raw.BattleID.String()), raw.BattleID.String(), nil)
}

func (c *Client) spawn(path string, body []byte, key, arenaID string, onSuccess func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.LoopPanics.Inc()
				c.logger.Error("delivery_panic", zap.String("endpoint", path), zap.Any("panic", r))
			}
		}()
		start := time.Now()
		err := c.deliver(c.rootCtx, path, body, key)
		metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			c.logger.Error("delivery_abandoned", zap.String("endpoint", path), zap.String("arena_id", arenaID), zap.Error(err))
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	}()
}

// deliver makes up to retries+1 attempts with a fixed pause. A 4xx ends
// the sequence at once.
func (c *Client) deliver(ctx context.Context, path string, body []byte, key string) error {
	attempts := c.retries + 1
	c.logger.Info("delivery_prepared", zap.String("endpoint", path), zap.Int("bytes", len(body)))
	for attempt := 1; attempt <= attempts; attempt++ {
		status, resp, err := c.post(ctx, path, body, key)
		switch {
		case err != nil:
			metrics.DeliveryAttempts.WithLabelValues(path, "error").Inc()
			c.logger.Warn("delivery_attempt_failed", zap.String("endpoint", path), zap.Int("attempt", attempt), zap.Int("of", attempts), zap.Error(err))
		case status >= 200 && status < 300:
			metrics.DeliveryAttempts.WithLabelValues(path, "ok").Inc()
			var msg battledto.APIMessage
			_ = json.Unmarshal(resp, &msg)
			c.logger.Info("delivery_ok", zap.String("endpoint", path), zap.Int("attempt", attempt), zap.String("response", msg.Text()))
			return nil
		case status >= 400 && status < 500:
			metrics.DeliveryAttempts.WithLabelValues(path, "rejected").Inc()
			c.logger.Error("delivery_rejected", zap.String("endpoint", path), zap.Int("status", status), zap.String("body", truncate(string(resp), 512)))
			return fmt.Errorf("%w: status=%d", ErrRejected, status)
		default:
			metrics.DeliveryAttempts.WithLabelValues(path, "error").Inc()
			c.logger.Warn("delivery_attempt_failed", zap.String("endpoint", path), zap.Int("attempt", attempt), zap.Int("of", attempts), zap.Int("status", status))
		}
		if attempt < attempts {
			if err := sleepWithContext(ctx, c.retryDelay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}

// post sends one request, rebuilding headers so a token obtained between
// attempts is picked up.
func (c *Client) post(ctx context.Context, path string, body []byte, key string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	c.authorize(req)
	req.SetBody(body)

	if err := c.http.DoDeadline(req, resp, computeDeadline(ctx, c.timeout)); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), nil
}

func (c *Client) authorize(req *fasthttp.Request) {
	if c.cfg == nil {
		return
	}
	if tok := strings.TrimSpace(c.cfg.Get().Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func computeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	clientDL := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
