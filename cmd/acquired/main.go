// Command acquired is the acquisition daemon's entry point. It loads
// configuration, validates it, wires every collector against the shared
// venue client and database pool, and runs the supervisor until a
// termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pmacquire/daemon/internal/archive"
	s3blob "github.com/pmacquire/daemon/internal/blob/s3"
	"github.com/pmacquire/daemon/internal/cache"
	"github.com/pmacquire/daemon/internal/collector"
	"github.com/pmacquire/daemon/internal/config"
	"github.com/pmacquire/daemon/internal/dbpool"
	"github.com/pmacquire/daemon/internal/httpapi"
	"github.com/pmacquire/daemon/internal/polymarket"
	"github.com/pmacquire/daemon/internal/query"
	"github.com/pmacquire/daemon/internal/ratelimit"
	"github.com/pmacquire/daemon/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	logger.Info("acquisition daemon starting", slog.String("config", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		if err == context.Canceled {
			logger.Info("daemon shut down gracefully")
		} else {
			logger.Error("daemon exited with error", slog.String("error", err.Error()))
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("acquisition daemon stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := dbpool.Open(ctx, dbpool.Config{
		DSN:             cfg.Database.DSN,
		MinConns:        int32(cfg.Database.MinPoolSize),
		MaxConns:        int32(cfg.Database.MaxPoolSize),
		CommandTimeout:  time.Duration(cfg.Database.CommandTimeoutSeconds) * time.Second,
		MaxConnIdleTime: time.Duration(cfg.Database.MaxInactiveLifetimeSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open database pool: %w", err)
	}
	defer pool.Close()

	applied, err := pool.RunMigrations(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", slog.Any("files", applied))
	}

	marketStore := query.NewMarketStore(pool.Underlying())
	priceStore := query.NewPriceSnapshotStore(pool.Underlying())
	orderbookStore := query.NewOrderbookSnapshotStore(pool.Underlying())
	tradeStore := query.NewTradeStore(pool.Underlying())

	limiter := ratelimit.NewLimiter()
	gamma := polymarket.NewGammaClient(cfg.Venue.HTTPHost, limiter)

	dedup, err := dedupHinter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	daemon := supervisor.New(logger)

	daemon.AddCollector(
		collector.NewMarketPoller(gamma, marketStore, dedup, logger),
		time.Duration(cfg.Collector.MarketRefreshIntervalSeconds)*time.Second,
	)
	daemon.AddCollector(
		collector.NewPricePoller(gamma, marketStore, priceStore, logger),
		time.Duration(cfg.Collector.PriceSnapshotIntervalSeconds)*time.Second,
	)
	daemon.AddCollector(
		collector.NewOrderbookPoller(marketStore, gamma, orderbookStore, cfg.Collector.OrderbookDepthLevels, logger),
		time.Duration(cfg.Collector.OrderbookSnapshotIntervalSeconds)*time.Second,
	)
	daemon.AddCollector(
		collector.NewResolutionTracker(gamma, marketStore, marketStore, marketStore, logger),
		time.Duration(cfg.Collector.ResolutionCheckIntervalSeconds)*time.Second,
	)

	if cfg.Collector.EnableWebsocketTrades {
		listener := collector.NewTradeListener(collector.TradeListenerConfig{
			WSURL:            cfg.Venue.WsHost,
			MaxTokensPerConn: cfg.Collector.WSMaxInstrumentsPerConn,
			PingInterval:     time.Duration(cfg.Collector.WSPingIntervalSeconds) * time.Second,
			BatchSize:        cfg.Collector.TradeBatchSize,
			DrainIdle:        time.Duration(cfg.Collector.TradeBatchDrainTimeoutSeconds) * time.Second,
			QueueCapacity:    cfg.Collector.TradeQueueCapacity,
		}, gamma, tradeStore, logger)
		daemon.SetTradeListener(listener)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fmt.Errorf("connect s3: %w", err)
		}
		writer := s3blob.NewWriter(s3Client)
		archiveAfter := time.Duration(cfg.Collector.ArchiveAfterDays) * 24 * time.Hour
		exporter := archive.NewExporter(pool.Underlying(), writer, archiveAfter, logger)
		daemon.AddCollector(collector.NewArchiveCollector(exporter), 24*time.Hour)
	}

	httpSrv := httpapi.NewServer(httpapi.Config{Port: cfg.HTTP.Port}, daemon, logger)

	return errRun(ctx, daemon, httpSrv)
}

func errRun(ctx context.Context, daemon *supervisor.Daemon, httpSrv *httpapi.Server) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errCh := make(chan error, 2)
	go func() { errCh <- daemon.Run(runCtx) }()
	go func() {
		err := httpSrv.Start()
		cancelRun()
		errCh <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	first := <-errCh
	<-errCh
	if first != nil {
		return first
	}
	return ctx.Err()
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func dedupHinter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (collector.DedupHinter, error) {
	if !cfg.Redis.Enabled {
		return cache.NewDedupCache(nil, logger), nil
	}
	rdb, err := cache.NewClient(ctx, cache.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		logger.Warn("redis unreachable, dedup cache disabled", slog.String("error", err.Error()))
		return cache.NewDedupCache(nil, logger), nil
	}
	return cache.NewDedupCache(rdb, logger), nil
}
