// Package metrics exposes the agent's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	ZoneTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_zone_transitions_total",
		Help: "Zone notifications handled, by state entered",
	}, []string{"state"})

	PendingBattles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "winchance_pending_battles",
		Help: "Arena ids awaiting result delivery",
	})

	PendingPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "winchance_pending_purged_total",
		Help: "Arena ids discarded as corrupt",
	})

	CacheQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_cache_queries_total",
		Help: "Host results-cache queries, by outcome (hit, miss, error)",
	}, []string{"outcome"})

	ResultsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_results_reconciled_total",
		Help: "Battle results reconciled, by channel (push, cache)",
	}, []string{"channel"})

	ResultsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "winchance_results_duplicate_total",
		Help: "Battle results ignored because the arena was already handed off",
	})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_delivery_attempts_total",
		Help: "Delivery HTTP attempts, by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "winchance_delivery_duration_seconds",
		Help:    "Duration of a delivery including retries",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 30},
	})

	RatingFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_rating_fetches_total",
		Help: "Rating lookups, by outcome (ok, empty, error)",
	}, []string{"outcome"})

	LastWinChance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "winchance_last_estimate_percent",
		Help: "Most recent win chance estimate",
	})

	HostEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "winchance_host_events_total",
		Help: "Frames received from the host bridge, by type",
	}, []string{"type"})

	OverlayFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "winchance_overlay_frames_dropped_total",
		Help: "Overlay frames superseded or failed before reaching the host",
	})

	LoopPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "winchance_loop_panics_total",
		Help: "Panics recovered on the event loop or background tasks",
	})
)

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if addr == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics_listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
