// Package consumer turns index-build announcements from Kafka into shard
// reloads on a searcher.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/events"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/kafka"
)

// Reloader replaces the shard set a searcher serves.
type Reloader interface {
	Reload(ctx context.Context, dirs []string) error
	Dirs() []string
}

// ReloadConsumer wraps a Kafka consumer reading index-build events.
type ReloadConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *ReloadConsumer {
	return &ReloadConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "reload-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (rc *ReloadConsumer) Start(ctx context.Context) error {
	rc.logger.Info("reload consumer starting")
	return rc.consumer.Start(ctx)
}

// HandleIndexBuilt returns a MessageHandler that reloads r with the shard
// directories announced by each event. Undecodable or foreign messages are
// logged and acknowledged; a failed reload is returned so the message is
// not committed.
func HandleIndexBuilt(r Reloader) kafka.MessageHandler {
	logger := slog.Default().With("component", "reload-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.IndexBuilt](value)
		if err != nil {
			logger.Error("failed to decode index event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.Type != events.TypeIndexBuilt {
			logger.Debug("ignoring event", "type", event.Type)
			return nil
		}
		if len(event.Shards) == 0 {
			logger.Warn("index event names no shards", "build_id", event.BuildID)
			return nil
		}
		if slices.Equal(event.Shards, r.Dirs()) {
			logger.Debug("shard set unchanged", "build_id", event.BuildID)
			return nil
		}
		if err := r.Reload(ctx, event.Shards); err != nil {
			return fmt.Errorf("reloading build %d: %w", event.BuildID, err)
		}
		logger.Info("shards reloaded",
			"build_id", event.BuildID,
			"shard", event.Shard,
			"shards", len(event.Shards),
			"documents", event.Documents,
		)
		return nil
	}
}
