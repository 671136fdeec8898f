package healthcheck_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tg-bot-proxy/internal/backend"
	"github.com/angeloszaimis/tg-bot-proxy/internal/healthcheck"
	"github.com/angeloszaimis/tg-bot-proxy/internal/metrics"
)

var _ = Describe("Healthcheck", func() {
	var (
		upstream *httptest.Server
		status   atomic.Int32
		paths    chan string
		b        *backend.Backend
		log      *slog.Logger
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		status.Store(http.StatusFound)
		paths = make(chan string, 100)

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case paths <- r.URL.Path:
			default:
			}
			if code := int(status.Load()); code == http.StatusFound {
				http.Redirect(w, r, "https://core.telegram.org/bots", http.StatusFound)
			} else {
				w.WriteHeader(code)
			}
		}))

		b = backend.New(mustParseURL(upstream.URL))
	})

	AfterEach(func() {
		upstream.Close()
	})

	Describe("Check", func() {
		It("should treat a redirect as healthy without following it", func() {
			b.SetHealthy(false)
			checker := healthcheck.New(b, time.Hour, "/", log)

			Expect(checker.Check(context.Background())).To(BeTrue())
			Expect(b.IsHealthy()).To(BeTrue())
			Expect(paths).To(Receive(Equal("/")))
		})

		It("should mark the upstream down on 5xx", func() {
			status.Store(http.StatusServiceUnavailable)
			checker := healthcheck.New(b, time.Hour, "/", log)

			Expect(checker.Check(context.Background())).To(BeFalse())
			Expect(b.IsHealthy()).To(BeFalse())
		})

		It("should treat a 404 as healthy", func() {
			status.Store(http.StatusNotFound)
			checker := healthcheck.New(b, time.Hour, "/health", log)

			Expect(checker.Check(context.Background())).To(BeTrue())
			Expect(paths).To(Receive(Equal("/health")))
		})

		It("should mark the upstream down when unreachable", func() {
			upstream.Close()
			checker := healthcheck.New(b, time.Hour, "/", log, healthcheck.WithProbeTimeout(time.Second))

			Expect(checker.Check(context.Background())).To(BeFalse())
			Expect(b.IsHealthy()).To(BeFalse())
		})

		It("should report transitions to the collector", func() {
			collector := metrics.NewCollector(10, 0, nil, log)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			collector.Start(ctx)

			status.Store(http.StatusBadGateway)
			checker := healthcheck.New(b, time.Hour, "/", log, healthcheck.WithCollector(collector))
			checker.Check(ctx)

			Eventually(func() bool {
				return collector.Snapshot("").UpstreamHealth
			}).Should(BeFalse())
		})
	})

	Describe("Run", func() {
		It("should probe immediately and then periodically", func() {
			b.SetHealthy(false)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go healthcheck.New(b, 50*time.Millisecond, "/", log).Run(ctx)

			Eventually(b.IsHealthy).Should(BeTrue())
			Eventually(paths).Should(HaveLen(3))
		})

		It("should stop when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				healthcheck.New(b, 50*time.Millisecond, "/", log).Run(ctx)
			}()

			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
