package backend

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Backend is the single upstream Bot API server. It owns the outbound HTTP
// client and tracks health, in-flight requests and response time.
type Backend struct {
	url              *url.URL
	client           *http.Client
	mutex            sync.Mutex
	isHealthy        bool
	inFlight         int
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

const ewmaAlpha = 0.2

// Option configures a Backend.
type Option func(*Backend)

// WithTransport replaces the transport of the outbound client.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Backend) {
		b.client.Transport = rt
	}
}

// WithTimeout bounds every outbound call, body read included.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.client.Timeout = d
	}
}

// New creates a Backend for the given base URL.
// The backend starts in a healthy state.
func New(u *url.URL, opts ...Option) *Backend {
	b := &Backend{
		url: u,
		client: &http.Client{
			// Upstream redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		isHealthy: true,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// URL returns the upstream base URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// Host returns the host[:port] the Host header is forced to.
func (b *Backend) Host() string {
	return b.url.Host
}

// Client returns the outbound HTTP client.
func (b *Backend) Client() *http.Client {
	return b.client
}

// Do sends req upstream. In-flight accounting and response time cover the
// round trip up to the response headers; the caller closes the body.
func (b *Backend) Do(req *http.Request) (*http.Response, error) {
	b.incrementInFlight()
	defer b.decrementInFlight()

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}

	b.RecordResponse(time.Since(start))
	return resp, nil
}

func (b *Backend) incrementInFlight() {
	b.mutex.Lock()
	b.inFlight++
	b.mutex.Unlock()
}

func (b *Backend) decrementInFlight() {
	b.mutex.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mutex.Unlock()
}

// InFlight returns the number of outbound calls currently waiting on upstream.
func (b *Backend) InFlight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.inFlight
}

// IsHealthy returns true if the last probe considered the upstream healthy.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.isHealthy
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.isHealthy == healthy {
		return false
	}

	b.isHealthy = healthy
	return true
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}
