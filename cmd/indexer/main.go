package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/events"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	input := flag.String("input", "-", "JSON-lines document file, or - for stdin")
	shards := flag.Int("shards", 0, "number of shards (overrides index.shards)")
	buildID := flag.String("build-id", "", "build directory name (default: UTC start time)")
	record := flag.Bool("catalog", true, "record the build in the postgres catalog")
	publish := flag.Bool("publish", true, "publish an index-built event")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *shards > 0 {
		cfg.Index.Shards = *shards
	}
	if *buildID == "" {
		*buildID = indexer.NewBuildID(time.Now())
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "build_id", *buildID, "shards", cfg.Index.Shards, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	start := time.Now()
	summaries, err := run(ctx, cfg, m, *input, *buildID)
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexBuildDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}

	dirs := make([]string, len(summaries))
	for i, s := range summaries {
		dirs[i] = s.Dir
	}
	builds := make([]int64, len(summaries))
	if *record {
		builds, err = recordBuilds(ctx, cfg.Postgres, summaries)
		if err != nil {
			slog.Error("recording build failed", "error", err)
			os.Exit(1)
		}
	}
	if *publish {
		if err := announce(ctx, cfg.Kafka, summaries, builds, dirs); err != nil {
			slog.Error("publishing index-built events failed", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("indexer finished", "build_id", *buildID, "shards", len(dirs), "elapsed", time.Since(start))
}

func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics, input, buildID string) ([]build.Summary, error) {
	var r io.Reader = os.Stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		r = f
	}
	engine, err := indexer.NewEngine(cfg.Index, m)
	if err != nil {
		return nil, err
	}
	if _, err := engine.Index(ctx, r); err != nil {
		return nil, err
	}
	return engine.Write(ctx, cfg.Index.DataDir, buildID)
}

// recordBuilds stores every shard of the build with the statistics of its
// parts, read back from the written directories.
func recordBuilds(ctx context.Context, cfg config.PostgresConfig, summaries []build.Summary) ([]int64, error) {
	db, err := postgres.New(cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	cat := catalog.New(db)
	if err := cat.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	ids := make([]int64, len(summaries))
	for i, s := range summaries {
		parts, err := partStatistics(s.Dir)
		if err != nil {
			return nil, err
		}
		ids[i], err = cat.Record(ctx, catalog.Build{Shard: i, Dir: s.Dir, Documents: s.Documents, Parts: parts})
		if err != nil {
			return nil, fmt.Errorf("recording shard %d: %w", i, err)
		}
	}
	return ids, nil
}

func partStatistics(dir string) ([]disk.PartStatistics, error) {
	idx, err := disk.Open(dir)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	var out []disk.PartStatistics
	for _, name := range idx.PartNames() {
		stats, err := idx.PartStatistics(name)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

func announce(ctx context.Context, cfg config.KafkaConfig, summaries []build.Summary, builds []int64, dirs []string) error {
	producer := kafka.NewProducer(cfg, cfg.Topics.IndexBuilt)
	defer producer.Close()
	batch := make([]kafka.Event, len(summaries))
	for i, s := range summaries {
		batch[i] = kafka.Event{
			Key: strconv.Itoa(i),
			Value: events.IndexBuilt{
				Type:      events.TypeIndexBuilt,
				BuildID:   builds[i],
				Shard:     i,
				Dir:       s.Dir,
				Shards:    dirs,
				Documents: s.Documents,
				Parts:     s.Parts,
				Timestamp: time.Now().UTC(),
			},
		}
	}
	return producer.PublishBatch(ctx, batch)
}
