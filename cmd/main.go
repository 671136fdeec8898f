package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/tg-bot-proxy/config"
	"github.com/angeloszaimis/tg-bot-proxy/internal/backend"
	"github.com/angeloszaimis/tg-bot-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/tg-bot-proxy/internal/handler"
	"github.com/angeloszaimis/tg-bot-proxy/internal/healthcheck"
	"github.com/angeloszaimis/tg-bot-proxy/internal/httpserver"
	"github.com/angeloszaimis/tg-bot-proxy/internal/metrics"
	"github.com/angeloszaimis/tg-bot-proxy/internal/middleware"
	"github.com/angeloszaimis/tg-bot-proxy/pkg/logger"
)

// configFileEnv names an explicit config file, overriding the search path.
const configFileEnv = "TGPROXY_CONFIG"

func main() {
	cfg, err := config.Load(os.Getenv(configFileEnv))
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize proxy", slog.Any("err", err))
		os.Exit(1)
	}

	if err := a.run(ctx); err != nil {
		log.Error("Proxy stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

// app holds every component built at startup. Nothing is created lazily.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	backend   *backend.Backend
	breaker   *circuitbreaker.CircuitBreaker
	exporter  *metrics.Exporter
	collector *metrics.Collector
	checker   *healthcheck.Checker
	proxy     http.Handler
	admin     http.Handler
	routes    int
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	upstreamURL, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}

	a.exporter = metrics.NewExporter(cfg.Metrics.Namespace)
	a.collector = metrics.NewCollector(cfg.Metrics.BufferSize, cfg.Metrics.MaxSeries, a.exporter, log)
	a.backend = backend.New(upstreamURL, backend.WithTimeout(upstreamTimeout))

	if cfg.CircuitBreaker.Enabled {
		a.breaker, err = newBreaker(cfg.CircuitBreaker, upstreamURL.Host, a.collector, log)
		if err != nil {
			return nil, err
		}
	}

	if cfg.HealthCheck.Enabled {
		interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
		if err != nil {
			return nil, err
		}
		a.checker = healthcheck.New(a.backend, interval, cfg.HealthCheck.Path, log,
			healthcheck.WithCollector(a.collector))
	}

	proxyHandler := handler.NewProxyHandler(log, a.backend, a.breaker, a.collector, cfg.Upstream.MaxBodyBytes)
	rt := setupRouter(proxyHandler)
	a.routes = rt.Len()

	a.proxy = middleware.Chain(rt,
		middleware.Recovery(log),
		middleware.RequestID(cfg.Server.TrustRequestID),
		middleware.AccessLog(log),
	)
	a.admin = setupAdminMux(a.collector, a.exporter, a.backend, a.breaker)

	return a, nil
}

func newBreaker(
	cfg config.CircuitBreakerConfig,
	name string,
	collector *metrics.Collector,
	log *slog.Logger,
) (*circuitbreaker.CircuitBreaker, error) {
	resetTimeout, err := time.ParseDuration(cfg.ResetTimeout)
	if err != nil {
		return nil, err
	}

	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:             name,
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     resetTimeout,
		HalfOpenRequests: cfg.HalfOpenRequests,
		OnStateChange: func(from, to circuitbreaker.State) {
			log.Warn("Circuit breaker state changed",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			collector.Emit(metrics.MetricEvent{
				Type:  metrics.EventBreakerStateChanged,
				State: to.String(),
			})
		},
	}), nil
}

// run serves until ctx is done or a listener fails, then shuts both
// listeners down.
func (a *app) run(ctx context.Context) error {
	timeouts, err := a.serverTimeouts()
	if err != nil {
		return err
	}

	servers := make([]*httpserver.Server, 0, 2)

	proxySrv, err := httpserver.New(a.cfg.Server.Address, a.proxy, timeouts)
	if err != nil {
		return err
	}
	servers = append(servers, proxySrv)

	if a.cfg.Server.AdminAddress != "" {
		adminSrv, err := httpserver.New(a.cfg.Server.AdminAddress, a.admin)
		if err != nil {
			return err
		}
		servers = append(servers, adminSrv)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	a.collector.Start(runCtx)
	if a.checker != nil {
		go a.checker.Run(runCtx)
	}

	srvErrCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *httpserver.Server) {
			srvErrCh <- srv.Start()
		}(srv)
	}

	a.log.Info("Proxy started",
		slog.String("address", a.cfg.Server.Address),
		slog.String("admin_address", a.cfg.Server.AdminAddress),
		slog.String("upstream", a.backend.URL().String()),
		slog.Int("routes", a.routes),
		slog.Bool("circuit_breaker", a.breaker != nil),
		slog.Bool("health_check", a.checker != nil))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case runErr = <-srvErrCh:
		if runErr != nil {
			a.log.Error("Listener failed", slog.Any("err", runErr))
		}
	}

	for _, srv := range servers {
		if err := srv.Shutdown(context.Background()); err != nil {
			a.log.Error("Error during shutdown",
				slog.String("address", srv.Addr()),
				slog.Any("err", err))
		}
	}

	return runErr
}

func (a *app) serverTimeouts() (httpserver.Option, error) {
	read, err := time.ParseDuration(a.cfg.Server.ReadTimeout)
	if err != nil {
		return nil, err
	}
	write, err := time.ParseDuration(a.cfg.Server.WriteTimeout)
	if err != nil {
		return nil, err
	}
	idle, err := time.ParseDuration(a.cfg.Server.IdleTimeout)
	if err != nil {
		return nil, err
	}

	return httpserver.WithTimeouts(read, write, idle), nil
}
