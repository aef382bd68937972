// Package ratings looks up player skill ratings on the public stats API.
package ratings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/metrics"
)

const statusOK = "ok"

var errStatus = errors.New("stats api returned non-ok status")

// Lookup is the capability the controller needs: a best-effort async
// fetch whose completion always fires exactly once.
type Lookup interface {
	FetchAsync(ctx context.Context, ids []int64, done func(map[int64]float64))
}

type Fetcher struct {
	endpoint string
	appID    string
	http     *fasthttp.Client
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

func NewFetcher(endpoint, appID string, opts ...Option) *Fetcher {
	f := &Fetcher{
		endpoint: strings.TrimSpace(endpoint),
		appID:    strings.TrimSpace(appID),
		http:     &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 4},
		timeout:  10 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type accountInfoResponse struct {
	Status string                  `json:"status"`
	Error  *apiError               `json:"error,omitempty"`
	Data   map[string]*accountInfo `json:"data"`
}

type apiError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type accountInfo struct {
	GlobalRating *float64 `json:"global_rating"`
}

// Fetch returns a rating per account id. Ids without data are absent; any
// failure yields an empty map.
func (f *Fetcher) Fetch(ctx context.Context, ids []int64) map[int64]float64 {
	out := make(map[int64]float64)
	if len(ids) == 0 {
		return out
	}
	resp, err := f.query(ctx, ids)
	if err != nil {
		metrics.RatingFetches.WithLabelValues("error").Inc()
		f.logger.Error("ratings_fetch_failed", zap.Int("ids", len(ids)), zap.Error(err))
		return out
	}
	for k, info := range resp.Data {
		if info == nil {
			continue
		}
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		var r float64
		if info.GlobalRating != nil {
			r = *info.GlobalRating
		}
		out[id] = r
	}
	if len(out) == 0 {
		metrics.RatingFetches.WithLabelValues("empty").Inc()
	} else {
		metrics.RatingFetches.WithLabelValues("ok").Inc()
	}
	f.logger.Info("ratings_fetched", zap.Int("requested", len(ids)), zap.Int("returned", len(out)))
	return out
}

// FetchAsync runs Fetch on its own goroutine and hands the result to done.
func (f *Fetcher) FetchAsync(ctx context.Context, ids []int64, done func(map[int64]float64)) {
	ids = append([]int64(nil), ids...)
	go func() {
		result := map[int64]float64{}
		defer func() {
			if r := recover(); r != nil {
				metrics.LoopPanics.Inc()
				f.logger.Error("ratings_fetch_panic", zap.Any("panic", r))
			}
			if done != nil {
				done(result)
			}
		}()
		result = f.Fetch(ctx, ids)
	}()
}

func (f *Fetcher) query(ctx context.Context, ids []int64) (*accountInfoResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(f.endpoint)
	args := req.URI().QueryArgs()
	args.Set("application_id", f.appID)
	args.Set("account_id", strings.Join(parts, ","))
	args.Set("fields", "global_rating")

	if err := f.http.DoDeadline(req, resp, deadline(ctx, f.timeout)); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return nil, fmt.Errorf("stats api error: status=%d", status)
	}
	var out accountInfoResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Status != statusOK {
		if out.Error != nil {
			return nil, fmt.Errorf("%w: %s", errStatus, out.Error.Message)
		}
		return nil, errStatus
	}
	return &out, nil
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	clientDL := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

// Posted wraps a Lookup so completions land on the event loop.
type Posted struct {
	Lookup Lookup
	Sched  eventloop.Scheduler
}

func (p Posted) FetchAsync(ctx context.Context, ids []int64, done func(map[int64]float64)) {
	p.Lookup.FetchAsync(ctx, ids, func(m map[int64]float64) {
		p.Sched.Post(func() { done(m) })
	})
}
