package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/winchance-agent/internal/apiclient"
	"github.com/park285/winchance-agent/internal/apiconfig"
	"github.com/park285/winchance-agent/internal/archive"
	"github.com/park285/winchance-agent/internal/battlectx"
	"github.com/park285/winchance-agent/internal/catalog"
	appcfg "github.com/park285/winchance-agent/internal/config"
	"github.com/park285/winchance-agent/internal/eventloop"
	"github.com/park285/winchance-agent/internal/hostlink"
	"github.com/park285/winchance-agent/internal/lifecycle"
	"github.com/park285/winchance-agent/internal/metrics"
	"github.com/park285/winchance-agent/internal/msgcat"
	"github.com/park285/winchance-agent/internal/obslog"
	"github.com/park285/winchance-agent/internal/overlay"
	"github.com/park285/winchance-agent/internal/pending"
	"github.com/park285/winchance-agent/internal/ratings"
	"github.com/park285/winchance-agent/internal/reconcile"
	"github.com/park285/winchance-agent/internal/redisconn"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	session := uuid.NewString()
	logger.Info("agent_starting", zap.String("session", session), zap.String("data_dir", cfg.DataDir))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, session, logger); err != nil {
		logger.Error("agent_stopped", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
	logger.Info("agent_stopped")
}

func run(ctx context.Context, cfg *appcfg.AppConfig, session string, logger *zap.Logger) error {
	contexts, queue, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return err
	}
	names, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return err
	}

	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			// 로컬 기록은 선택 사항이라 실패해도 계속 진행
			logger.Warn("archive_disabled", zap.Error(err))
		} else {
			defer func() { _ = repo.Close() }()
		}
	}

	loop := eventloop.New(logger.Named("loop"))

	apiStore := apiconfig.Open(cfg.APIConfigFile(), apiconfig.Config{
		APIURL:  cfg.APIURL,
		Region:  cfg.APIRegion,
		Enabled: cfg.APIEnabled,
	}, logger.Named("apiconfig"))

	deliveryCtx, cancelDelivery := context.WithCancel(context.Background())
	defer cancelDelivery()
	api := apiclient.New(apiStore.Get().APIURL, apiStore,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithRetry(cfg.DeliveryRetries, cfg.DeliveryRetryDelay),
		apiclient.WithLogger(logger.Named("api")),
		apiclient.WithContext(deliveryCtx),
	)

	recOpts := []reconcile.Option{
		reconcile.WithNames(names),
		reconcile.WithPending(queue),
		reconcile.WithOptions(reconcile.Options{SendRaw: cfg.SendRawResults, IncludeRaw: cfg.IncludeRawResult}),
		reconcile.WithLogger(logger.Named("reconcile")),
	}
	if repo != nil {
		recOpts = append(recOpts, reconcile.WithArchive(repo))
	}
	results := reconcile.New(contexts, api, loop, recOpts...)

	fetcher := ratings.NewFetcher(cfg.RatingsURL, cfg.ApplicationID,
		ratings.WithTimeout(cfg.HTTPTimeout),
		ratings.WithLogger(logger.Named("ratings")),
	)

	headers := hostlink.BearerHeaders(cfg.HostToken, session)
	host := hostlink.NewClient(cfg.HostBaseURL,
		hostlink.WithHeaderProvider(headers),
		hostlink.WithTimeout(cfg.HTTPTimeout),
	)
	ws := hostlink.NewWebSocket(cfg.HostWSURL, 10, time.Second, logger.Named("hostws"))
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state hostlink.WebSocketState) {
		logger.Info("host_ws_state", zap.String("state", string(state)))
	})

	sink := hostlink.NewOverlaySink(hostlink.NewEgress(cfg.HostEgress, host, ws, logger.Named("egress")), logger.Named("overlay"))
	input := hostlink.NewInputCache()
	window := overlay.NewWindow(sink, input, loop, cat, cfg.OverlayFile(), logger.Named("overlay"))

	lcfg := lifecycle.DefaultConfig()
	lcfg.Zones = lifecycle.Zones{Hangar: cfg.ZoneHangar, Loading: cfg.ZoneLoading, Battle: cfg.ZoneBattle}
	lcfg.PollInterval = cfg.PollInterval
	lcfg.SettleDelay = cfg.SettleDelay
	lcfg.PlayerRetryDelay = cfg.PlayerRetryDelay

	ctrl := lifecycle.New(ctx, lifecycle.Deps{
		Host:     host,
		Contexts: contexts,
		Pending:  queue,
		Ratings:  ratings.Posted{Lookup: fetcher, Sched: loop},
		Results:  results,
		Overlay:  window,
		API:      api,
		Sched:    loop,
		Logger:   logger.Named("lifecycle"),
	}, lcfg)

	router := hostlink.NewRouter(ctrl, input, logger.Named("router"))
	router.Attach(ws)

	if hc, err := host.GetConfig(ctx); err != nil {
		logger.Warn("host_config_unavailable", zap.Error(err))
	} else {
		logger.Info("host_config", zap.String("version", hc.Version), zap.String("realm", hc.Realm), zap.Bool("overlay_ready", hc.OverlayReady))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return sink.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsAddr, logger.Named("metrics")) })
	g.Go(func() error {
		if err := ws.Connect(gctx); err != nil {
			// reconnect loop keeps trying in the background
			logger.Warn("host_ws_connect_failed", zap.Error(err))
		}
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctrl.Stop()
	if cerr := ws.Close(shutdownCtx); cerr != nil {
		logger.Warn("host_ws_close_failed", zap.Error(cerr))
	}
	if werr := api.Wait(shutdownCtx); werr != nil {
		logger.Warn("deliveries_abandoned", zap.Error(werr))
		cancelDelivery()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openStores picks Redis when REDIS_URL is set, otherwise the data dir.
func openStores(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) (battlectx.Store, pending.Queue, func(), error) {
	if cfg.RedisURL == "" {
		logger.Info("stores_file", zap.String("dir", cfg.DataDir))
		return battlectx.NewFileStore(cfg.ContextDir(), logger.Named("battlectx")),
			pending.NewFileQueue(cfg.PendingFile(), logger.Named("pending")),
			func() {}, nil
	}
	rdb, err := redisconn.Open(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("stores_redis")
	return battlectx.NewRedisStore(rdb, logger.Named("battlectx")), pending.NewRedisQueue(rdb), func() { _ = rdb.Close() }, nil
}
