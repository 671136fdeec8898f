package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter mirrors collector events into Prometheus metrics on its own
// registry.
type Exporter struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	responsesTotal  *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	upstreamUp      prometheus.Gauge
	breakerState    prometheus.Gauge
}

func NewExporter(namespace string) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	e := &Exporter{
		registry: registry,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "requests_total",
				Help:      "Total number of proxied Bot API requests",
			},
			[]string{"api_method"},
		),
		responsesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "responses_total",
				Help:      "Total number of responses relayed, by status code",
			},
			[]string{"api_method", "code"},
		),
		upstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream Bot API calls",
				Buckets: []float64{
					.005, .01, .025, .05, .1,
					.25, .5, 1, 2.5, 5, 10, 30,
				},
			},
			[]string{"api_method"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total number of failed upstream calls",
			},
			[]string{"error_type"},
		),
		upstreamUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "up",
				Help:      "1 when the last upstream probe succeeded",
			},
		),
		breakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
	}

	e.upstreamUp.Set(1)
	return e
}

// Registry exposes the underlying registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) observe(event MetricEvent, key string) {
	switch event.Type {
	case EventRequestReceived:
		e.requestsTotal.WithLabelValues(key).Inc()

	case EventResponseCompleted:
		e.responsesTotal.WithLabelValues(key, strconv.Itoa(event.StatusCode)).Inc()
		if event.Duration > 0 {
			e.upstreamLatency.WithLabelValues(key).Observe(event.Duration.Seconds())
		}

	case EventUpstreamError:
		e.upstreamErrors.WithLabelValues(event.ErrorType).Inc()

	case EventHealthChanged:
		if event.Healthy {
			e.upstreamUp.Set(1)
		} else {
			e.upstreamUp.Set(0)
		}

	case EventBreakerStateChanged:
		e.breakerState.Set(breakerGaugeValue(event.State))
	}
}

func breakerGaugeValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return 0
	}
}
