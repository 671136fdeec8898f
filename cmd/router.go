package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/angeloszaimis/tg-bot-proxy/internal/backend"
	"github.com/angeloszaimis/tg-bot-proxy/internal/botapi"
	"github.com/angeloszaimis/tg-bot-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/tg-bot-proxy/internal/metrics"
	"github.com/angeloszaimis/tg-bot-proxy/internal/router"
)

// setupRouter registers the Bot API routes. Everything else falls through
// to the router's JSON 404.
func setupRouter(proxy http.Handler) *router.Router {
	return router.New().
		Get(botapi.Pattern, proxy).
		Post(botapi.Pattern, proxy)
}

// healthResponse is the /healthz body. LatencyEWMAMs is the moving average
// of upstream response time, 0 before the first call.
type healthResponse struct {
	Status          string  `json:"status"`
	Upstream        string  `json:"upstream"`
	UpstreamHealthy bool    `json:"upstream_healthy"`
	BreakerState    string  `json:"breaker_state,omitempty"`
	InFlight        int     `json:"in_flight"`
	LatencyEWMAMs   float64 `json:"upstream_latency_ewma_ms"`
}

func setupAdminMux(
	collector *metrics.Collector,
	exporter *metrics.Exporter,
	b *backend.Backend,
	breaker *circuitbreaker.CircuitBreaker,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", exporter.Handler())
	mux.HandleFunc("GET /stats", collector.Handler(b.URL().String()))
	mux.HandleFunc("GET /healthz", healthzHandler(b, breaker))

	return mux
}

func healthzHandler(b *backend.Backend, breaker *circuitbreaker.CircuitBreaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := healthResponse{
			Status:          "ok",
			Upstream:        b.URL().String(),
			UpstreamHealthy: b.IsHealthy(),
			InFlight:        b.InFlight(),
			LatencyEWMAMs:   float64(b.EWMATime()) / float64(time.Millisecond),
		}
		if breaker != nil {
			res.BreakerState = breaker.State().String()
		}

		status := http.StatusOK
		if !res.UpstreamHealthy {
			res.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(res)
	}
}
