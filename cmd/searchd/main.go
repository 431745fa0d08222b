package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/router"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/resilience"
)

var connectRetry = resilience.RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	host := flag.String("host", "", "bind host (overrides config and HOST)")
	port := flag.Int("port", 0, "listen port (overrides config and PORT)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting search service", "addr", cfg.Server.Addr(), "corpus_root", cfg.Corpus.Root)

	units, err := resolveUnits(cfg.Corpus)
	if err != nil {
		return err
	}
	loaded, err := corpus.Load(ctx, units)
	if err != nil {
		// Integrity failures land here: a partially verified corpus is
		// never served.
		return fmt.Errorf("building corpus: %w", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	execOpts := []executor.Option{executor.WithMetrics(m)}
	var statsOpts []analytics.HandlerOption
	checker := health.NewChecker()

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient = connectRedis(ctx, cfg.Redis)
		if redisClient != nil {
			defer redisClient.Close()
			checker.RegisterOptional("redis", health.PingCheck(redisClient.Ping))
		}
	}
	if cfg.Cache.Enabled {
		opts := cache.Options{
			Size:        cfg.Cache.Size,
			Fingerprint: executor.Fingerprint(loaded),
			RemoteTTL:   cfg.Cache.TTL,
			Metrics:     m,
		}
		if redisClient != nil {
			opts.Remote = redisClient
		}
		qc := cache.New(opts)
		execOpts = append(execOpts, executor.WithCache(qc))
		statsOpts = append(statsOpts, analytics.WithCacheStats(qc.Stats))
		slog.Info("result cache enabled", "size", cfg.Cache.Size, "redis", redisClient != nil)
	}

	exec := executor.New(loaded, execOpts...)
	checker.Register("corpus", func(context.Context) health.ComponentHealth {
		if exec.DocCount() == 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "corpus is empty"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", exec.DocCount())}
	})

	recorderOpts := []analytics.RecorderOption{analytics.WithMetrics(m)}
	if cfg.Metrics.LogFile != "" {
		sink, err := analytics.NewFileSink(cfg.Metrics.LogFile)
		if err != nil {
			return err
		}
		recorderOpts = append(recorderOpts, analytics.WithSink(sink))
		slog.Info("latency log enabled", "path", cfg.Metrics.LogFile)
	}
	if cfg.Analytics.KafkaEnabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		sink := analytics.NewKafkaSink(producer, cfg.Analytics.BufferSize, 100, time.Second)
		sink.Start(context.WithoutCancel(ctx))
		recorderOpts = append(recorderOpts, analytics.WithSink(sink))
		slog.Info("latency events published to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}
	recorder := analytics.NewRecorder(cfg.Metrics.WindowSize, recorderOpts...)
	defer func() {
		if err := recorder.Close(); err != nil {
			slog.Warn("closing latency sinks", "error", err)
		}
	}()

	if cfg.Analytics.SnapshotEnabled {
		snapCtx, stopSnapshots := context.WithCancel(ctx)
		if done := startSnapshots(snapCtx, cfg, recorder, checker); done != nil {
			// The loop writes a final snapshot once snapCtx is cancelled.
			defer func() {
				stopSnapshots()
				<-done
			}()
		} else {
			stopSnapshots()
		}
	}

	var limiter middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		l := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		defer l.Close()
		limiter = l
		slog.Info("query rate limit enabled", "per_minute", cfg.Server.RateLimit)
	}

	h := handler.New(exec, recorder, handler.Options{
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Tracing:      cfg.Tracing.Enabled,
	})
	chain := router.New(router.Deps{
		Handler:      h,
		Ready:        checker.ReadyHandler(),
		Stats:        analytics.NewHandler(recorder, statsOpts...).Stats,
		Metrics:      m,
		Observer:     recorder,
		Limiter:      limiter,
		ServeMetrics: m != nil && cfg.Metrics.Port == 0,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})
	if m != nil && cfg.Metrics.Port != 0 {
		metricsSrv, err := metrics.StartServer(m, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           chain,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("search service listening",
			"addr", server.Addr,
			"documents", exec.DocCount(),
			"max_body_bytes", cfg.Server.MaxBodyBytes,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listening on %s: %w", server.Addr, err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}
	slog.Info("search service stopped")
	return nil
}

// resolveUnits uses the configured units when present and otherwise
// discovers every unit under the corpus root.
func resolveUnits(cfg config.CorpusConfig) ([]corpus.Unit, error) {
	if len(cfg.Units) == 0 {
		units, err := corpus.Discover(cfg.Root)
		if err != nil {
			return nil, err
		}
		slog.Info("discovered corpus units", "root", cfg.Root, "units", len(units))
		return units, nil
	}
	units := make([]corpus.Unit, 0, len(cfg.Units))
	for _, u := range cfg.Units {
		units = append(units, corpus.Unit{
			MethodologyID: u.MethodologyID,
			Version:       u.Version,
			Dir:           u.Dir,
			RulesFile:     u.RulesFile,
		})
	}
	return units, nil
}

// connectRedis returns nil when Redis stays unreachable; the cache then runs
// local-only.
func connectRedis(ctx context.Context, cfg config.RedisConfig) *pkgredis.Client {
	client, err := resilience.Do(ctx, "redis-connect", connectRetry, func() (*pkgredis.Client, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return pkgredis.NewClient(pingCtx, cfg)
	})
	if err != nil {
		slog.Warn("redis unavailable, shared cache tier disabled", "addr", cfg.Addr, "error", err)
		return nil
	}
	slog.Info("redis cache tier connected", "addr", cfg.Addr)
	return client
}

// startSnapshots connects to Postgres and starts periodic latency snapshots.
// It returns nil, after logging, when the database cannot be used.
func startSnapshots(ctx context.Context, cfg *config.Config, src aggregator.SnapshotSource, checker *health.Checker) <-chan struct{} {
	db, err := resilience.Do(ctx, "postgres-connect", connectRetry, func() (*postgres.Client, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return postgres.New(pingCtx, cfg.Postgres)
	})
	if err != nil {
		slog.Warn("postgres unavailable, latency snapshots disabled", "error", err)
		return nil
	}

	instance, _ := os.Hostname()
	if instance == "" {
		instance = "searchd"
	}
	store := aggregator.NewStore(db.DB, fmt.Sprintf("%s:%d", instance, cfg.Server.Port))
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Warn("latency snapshots disabled", "error", err)
		_ = db.Close()
		return nil
	}
	if prev, err := store.LatestSnapshot(ctx); err != nil {
		slog.Warn("reading previous snapshot", "error", err)
	} else if prev != nil {
		slog.Info("previous run latency",
			"captured_at", prev.CapturedAt,
			"requests", prev.Requests,
			"p95_ms", prev.Window.P95Ms,
		)
	}
	checker.RegisterOptional("postgres", health.PingCheck(db.Ping))

	saved := store.StartPeriodicSave(ctx, src, cfg.Analytics.SnapshotInterval)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-saved
		_ = db.Close()
	}()
	return done
}
