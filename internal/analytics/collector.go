package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/akalivaty/Artale-drop-bot/pkg/kafka"
	"github.com/akalivaty/Artale-drop-bot/pkg/metrics"
)

const finalFlushTimeout = 5 * time.Second

// Publisher is the write side of the event topic. *kafka.Producer
// satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers query events and publishes them in batches, flushing
// when a batch fills or every flushInterval. Track never blocks: events
// arriving while the buffer is full are dropped and counted.
type Collector struct {
	publisher     Publisher
	metrics       *metrics.Metrics
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.RWMutex
	closed  bool
	eventCh chan QueryEvent
	pending []kafka.Event
	done    chan struct{}
}

func NewCollector(p Publisher, m *metrics.Metrics, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     p,
		metrics:       m,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "analytics-collector"),
		eventCh:       make(chan QueryEvent, bufferSize),
		pending:       make([]kafka.Event, 0, batchSize),
		done:          make(chan struct{}),
	}
}

// Start runs the publish loop in the background until ctx is cancelled or
// Close is called. Buffered events get a final flush either way.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case e, ok := <-c.eventCh:
				if !ok {
					c.finalFlush()
					return
				}
				c.add(e)
				if len(c.pending) >= c.batchSize {
					c.flush(ctx)
				}
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				c.drain()
				c.finalFlush()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

func (c *Collector) Track(e QueryEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		c.metrics.IncAnalyticsDropped()
		c.logger.Warn("analytics event dropped (buffer full)", "type", e.Type)
	}
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) add(e QueryEvent) {
	c.pending = append(c.pending, kafka.Event{Key: string(e.Type), Value: e})
}

func (c *Collector) drain() {
	for {
		select {
		case e, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.add(e)
		default:
			return
		}
	}
}

func (c *Collector) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()
	c.flush(ctx)
}

// flush publishes the pending batch. A failed batch is kept for the next
// flush, up to three batches' worth; older events beyond that are dropped.
func (c *Collector) flush(ctx context.Context) {
	if len(c.pending) == 0 {
		return
	}
	if err := c.publisher.PublishBatch(ctx, c.pending); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(c.pending), "error", err)
		if limit := c.batchSize * 3; len(c.pending) > limit {
			dropped := len(c.pending) - limit
			c.pending = append(c.pending[:0], c.pending[dropped:]...)
			for i := 0; i < dropped; i++ {
				c.metrics.IncAnalyticsDropped()
			}
			c.logger.Warn("pending events dropped", "dropped", dropped)
		}
		return
	}
	c.logger.Debug("batch flushed", "events", len(c.pending))
	c.pending = make([]kafka.Event, 0, c.batchSize)
}
