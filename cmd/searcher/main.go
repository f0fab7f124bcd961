package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	shardList := flag.String("shards", "", "comma-separated shard directories, in shard order")
	useCatalog := flag.Bool("catalog", true, "look up current shard directories in the postgres catalog")
	reload := flag.Bool("reload", true, "reload shards on index-built events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searcher", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()

	var db *postgres.Client
	if *useCatalog {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, shard catalog disabled", "error", err)
		} else {
			defer db.Close()
			checker.Register("postgres", health.OptionalPingCheck(db.Ping))
		}
	}
	dirs, err := shardDirs(ctx, *shardList, db, cfg.Index)
	if err != nil {
		slog.Error("failed to locate shards", "error", err)
		os.Exit(1)
	}

	var resultCache *cache.ResultCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			resultCache, err = cache.New(redisClient, cfg.Redis, m)
			if err != nil {
				slog.Error("failed to create result cache", "error", err)
				os.Exit(1)
			}
			defer resultCache.Close()
			checker.Register("redis", health.OptionalPingCheck(redisClient.Ping))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	queryProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.QueryEvents)
	defer queryProducer.Close()
	collector := analytics.NewCollector(queryProducer, 500, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()

	exec, err := executor.New(dirs, cfg.Retrieval, executor.Options{
		Cache:     resultCache,
		Collector: collector,
		Metrics:   m,
	})
	if err != nil {
		slog.Error("failed to open shards", "error", err)
		os.Exit(1)
	}
	defer exec.Close()
	slog.Info("shards opened", "shards", len(dirs))
	checker.Register("shards", health.ShardsCheck(exec.ShardCount))

	if *reload {
		hostname, _ := os.Hostname()
		group := fmt.Sprintf("%s-searcher-%s", cfg.Kafka.ConsumerGroup, hostname)
		reloads := consumer.New(kafka.NewConsumer(cfg.Kafka, group, cfg.Kafka.Topics.IndexBuilt, consumer.HandleIndexBuilt(exec)))
		go func() {
			if err := reloads.Start(ctx); err != nil {
				slog.Error("reload consumer error", "error", err)
			}
		}()
	}

	mux := http.NewServeMux()
	handler.New(exec).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Tracing(tracing.NewTracer(cfg.Tracing))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("searcher stopped")
}

// shardDirs resolves the shard set: the -shards flag, then the catalog,
// then the newest build of each shard under the data directory.
func shardDirs(ctx context.Context, list string, db *postgres.Client, cfg config.IndexConfig) ([]string, error) {
	if list != "" {
		return strings.Split(list, ","), nil
	}
	if db != nil {
		builds, err := catalog.New(db).Current(ctx)
		if err != nil {
			slog.Warn("catalog lookup failed, scanning data directory", "error", err)
		} else if len(builds) > 0 {
			return catalog.Dirs(builds), nil
		}
	}
	return indexer.LatestDirs(cfg.DataDir, cfg.Shards)
}
