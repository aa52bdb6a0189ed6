package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/indexer/shard"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/project"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/internal/visibility"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/migrations"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/redis"
)

const shardReportInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/statsd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	exitCode := 0
	defer func() { os.Exit(exitCode) }()
	slog.Info("starting statistics service",
		"port", cfg.Server.Port,
		"num_shards", cfg.Indexer.NumShards,
		"postgres", cfg.Postgres.Enabled,
		"kafka", cfg.Kafka.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}
	checker := health.NewChecker()

	router, err := shard.NewRouter(cfg.Indexer)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	router.WithMetrics(m)
	defer func() {
		slog.Info("flushing all shards before shutdown")
		if err := router.Close(); err != nil {
			slog.Error("closing shards failed", "error", err)
		}
	}()
	for shardID, engine := range router.Engines() {
		engine.StartFlushLoop(ctx)
		slog.Debug("flush loop started", "shard_id", shardID)
	}
	consumer.StartShardReporter(ctx, router, m, shardReportInterval)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d shards, %d issues", router.NumShards(), router.TotalDocs()),
		}
	})

	var (
		db          *postgres.Client
		layoutStore visibility.Store
		cleaner     project.LayoutCleaner
		projectRepo project.Repository
	)
	if cfg.Postgres.Enabled {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		pgStore := visibility.NewPostgresStore(db)
		layoutStore, cleaner = pgStore, pgStore
		projectRepo = project.NewPostgresRepository(db)
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDown))
	} else {
		memStore := visibility.NewMemoryStore(visibility.Layout{})
		layoutStore, cleaner = memStore, memStore
		projectRepo = project.NewMemoryRepository()
		checker.Register("postgres", health.Static(health.StatusDegraded, "disabled, using in-memory stores"))
	}

	provider := visibility.NewProvider(layoutStore, cfg.Visibility.RefreshInterval, cfg.Visibility.LoadTimeout).WithMetrics(m)
	if err := provider.Refresh(ctx); err != nil {
		slog.Warn("initial visibility load failed, retrying on demand", "error", err)
	}
	provider.Start(ctx, cfg.Visibility.RefreshInterval)
	checker.Register("visibility", func(ctx context.Context) health.ComponentHealth {
		snap, err := provider.Snapshot(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "version " + snap.Version()}
	})

	dispatcher := events.NewDispatcher(m)
	if err := dispatcher.Register("index", consumer.NewIndexListener(router, m)); err != nil {
		slog.Error("failed to register index listener", "error", err)
		os.Exit(1)
	}

	agg := analytics.NewAggregator()
	var (
		sink    publisher.Sink
		tracker handler.Tracker
	)
	if cfg.Kafka.Enabled {
		issueProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IssueEvents)
		defer issueProducer.Close()
		sink = publisher.NewKafkaSink(issueProducer)
		runConsumer(ctx, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IssueEvents, events.MessageHandler(dispatcher)))

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize, m)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		runConsumer(ctx, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg)))

		slog.Info("kafka pipelines started",
			"issue_topic", cfg.Kafka.Topics.IssueEvents,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
			"group", cfg.Kafka.ConsumerGroup,
		)
		checker.Register("kafka", health.Static(health.StatusUp, "consuming"))
	} else {
		sink = publisher.NewDispatchSink(dispatcher)
		tracker = agg
		checker.Register("kafka", health.Static(health.StatusDegraded, "disabled, events dispatched in process"))
	}

	if db != nil {
		snapshots := aggregator.NewStore(db)
		if err := snapshots.Restore(ctx, agg); err != nil {
			slog.Warn("restoring analytics snapshot failed", "error", err)
		}
		snapshots.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
	}

	var resultCache *cache.ResultCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, err.Error()))
		} else {
			defer redisClient.Close()
			resultCache = cache.New(redisClient, cfg.Redis.CacheTTL, m).WithComputeTimeout(cfg.Server.RequestTimeout)
			checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		checker.Register("redis", health.Static(health.StatusDegraded, "disabled"))
	}

	shards := make([]executor.Shard, 0, router.NumShards())
	for _, engine := range router.Engines() {
		shards = append(shards, engine)
	}
	exec := executor.NewSharded(shards, cfg.Stats.TimeoutPerShard, m)
	statsHandler := handler.New(exec, provider, router, handler.Options{
		Cache:        resultCache,
		Tracker:      tracker,
		Metrics:      m,
		DefaultLimit: cfg.Stats.DefaultLimit,
		MaxResults:   cfg.Stats.MaxResults,
	})

	mux := http.NewServeMux()
	statsHandler.Register(mux)
	project.NewHandler(project.NewService(projectRepo, cleaner, m)).Register(mux)
	ingesthandler.New(publisher.New(sink, m)).Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.CORSOrigins)),
	}
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go sweepLimiter(ctx, limiter)
		middlewares = append(middlewares, middleware.RateLimit(limiter))
	}
	middlewares = append(middlewares, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middlewares...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ListenAndServe returns as soon as Shutdown starts; the deferred closes
	// above must wait until in-flight requests have finished.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("statistics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		exitCode = 1
		return
	}
	<-drained
	slog.Info("statistics service stopped")
}

func runConsumer(ctx context.Context, c *kafka.Consumer) {
	go func() {
		if err := c.Start(ctx); err != nil {
			slog.Error("kafka consumer stopped with error", "error", err)
		}
	}()
}

func sweepLimiter(ctx context.Context, limiter *middleware.Limiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
