package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived     EventType = "request_received"
	EventResponseCompleted   EventType = "response_completed"
	EventUpstreamError       EventType = "upstream_error"
	EventHealthChanged       EventType = "health_changed"
	EventBreakerStateChanged EventType = "breaker_state_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	APIMethod  string
	Duration   time.Duration
	StatusCode int
	ErrorType  string
	Healthy    bool
	State      string
}

type Collector struct {
	eventCh  chan MetricEvent
	metrics  *Metrics
	exporter *Exporter
	logger   *slog.Logger
}

// NewCollector creates a collector. exporter may be nil.
func NewCollector(bufferSize, maxSeries int, exporter *Exporter, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:  make(chan MetricEvent, bufferSize),
		metrics:  NewMetrics(maxSeries),
		exporter: exporter,
		logger:   logger,
	}
}

// Emit sends event without blocking. Events are dropped when the buffer is full.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	key := c.metrics.SeriesKey(event.APIMethod)

	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(key)

	case EventResponseCompleted:
		c.metrics.RecordResponse(key, event.Duration, event.StatusCode)

	case EventUpstreamError:
		c.metrics.RecordUpstreamError(event.ErrorType)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Healthy)

	case EventBreakerStateChanged:
		c.metrics.UpdateBreakerState(event.State)
	}

	if c.exporter != nil {
		c.exporter.observe(event, key)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(upstream string) Snapshot {
	return c.metrics.Snapshot(upstream)
}
