// Package analytics batches query events and publishes them to kafka off
// the query path.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/events"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/kafka"
)

// Collector accumulates query events and flushes them when the batch is
// full or the flush interval passes, whichever comes first.
type Collector struct {
	publisher     kafka.Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	flushing      sync.Mutex
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher kafka.Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "query-events"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which ends with a final flush
// once ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("query event collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers ev. A full batch is flushed in the background.
func (c *Collector) Track(ev events.Query) {
	if c == nil {
		return
	}
	ev.Type = events.TypeQuery
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: ev.QueryID, Value: ev})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		go c.flush(context.Background())
	}
}

// Close waits for the flush loop to finish.
func (c *Collector) Close() {
	<-c.done
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.flushing.Lock()
	defer c.flushing.Unlock()
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("query event flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			c.logger.Warn("query event buffer overflow, events dropped", "dropped", len(c.buffer)-limit)
			c.buffer = c.buffer[:limit]
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("query events flushed", "events", len(batch))
}
