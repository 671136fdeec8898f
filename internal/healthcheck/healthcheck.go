package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/tg-bot-proxy/internal/backend"
	"github.com/angeloszaimis/tg-bot-proxy/internal/metrics"
)

const defaultProbeTimeout = 5 * time.Second

// Checker periodically probes the upstream Bot API server and records the
// result on the backend and in metrics.
type Checker struct {
	backend   *backend.Backend
	client    *http.Client
	target    *url.URL
	interval  time.Duration
	collector *metrics.Collector
	logger    *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithProbeTimeout bounds a single probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.client.Timeout = d
	}
}

// WithCollector reports health transitions to collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Checker) {
		c.collector = collector
	}
}

// New creates a Checker that sends GET <upstream><path> every interval.
// Probes share the backend's transport and do not follow redirects.
func New(b *backend.Backend, interval time.Duration, path string, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		backend: b,
		client: &http.Client{
			Transport:     b.Client().Transport,
			CheckRedirect: b.Client().CheckRedirect,
			Timeout:       defaultProbeTimeout,
		},
		target:   b.URL().ResolveReference(&url.URL{Path: path}),
		interval: interval,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run probes once immediately and then on every tick until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped",
				slog.String("upstream", c.backend.URL().String()))
			return

		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check performs one probe and updates the backend. Any answer below 500
// counts as healthy: the Bot API root redirects rather than serving 200.
func (c *Checker) Check(ctx context.Context) bool {
	healthy := c.probe(ctx)
	if ctx.Err() != nil {
		return c.backend.IsHealthy()
	}

	if !c.backend.SetHealthy(healthy) {
		return healthy
	}

	if healthy {
		c.logger.Info("Upstream is back up",
			slog.String("upstream", c.backend.URL().String()))
	} else {
		c.logger.Warn("Upstream is down",
			slog.String("upstream", c.backend.URL().String()))
	}

	if c.collector != nil {
		c.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Healthy: healthy,
		})
	}

	return healthy
}

func (c *Checker) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.target.String(), nil)
	if err != nil {
		return false
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Health probe failed",
			slog.String("target", c.target.String()),
			slog.Any("err", err))
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode < http.StatusInternalServerError
}
