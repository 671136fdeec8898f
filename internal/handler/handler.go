package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/tg-bot-proxy/internal/backend"
	"github.com/angeloszaimis/tg-bot-proxy/internal/botapi"
	"github.com/angeloszaimis/tg-bot-proxy/internal/circuitbreaker"
	"github.com/angeloszaimis/tg-bot-proxy/internal/metrics"
	"github.com/angeloszaimis/tg-bot-proxy/internal/middleware"
)

const defaultContentType = "application/json"

// ProxyHandler forwards Bot API requests to the upstream backend and relays
// the response. It expects requests already matched against botapi.Pattern.
type ProxyHandler struct {
	logger           *slog.Logger
	backend          *backend.Backend
	breaker          *circuitbreaker.CircuitBreaker
	metricsCollector *metrics.Collector
	maxBodyBytes     int64
}

// NewProxyHandler creates a handler. breaker and collector may be nil.
func NewProxyHandler(
	logger *slog.Logger,
	b *backend.Backend,
	breaker *circuitbreaker.CircuitBreaker,
	collector *metrics.Collector,
	maxBodyBytes int64,
) *ProxyHandler {
	return &ProxyHandler{
		logger:           logger,
		backend:          b,
		breaker:          breaker,
		metricsCollector: collector,
		maxBodyBytes:     maxBodyBytes,
	}
}

type upstreamResponse struct {
	statusCode  int
	contentType string
	body        []byte
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(slog.String("request_id", middleware.RequestIDFromContext(r.Context())))

	params, err := botapi.Parse(r.URL.EscapedPath())
	if err != nil {
		h.fail(w, log, &ProxyError{Op: "parse", Kind: ErrPathExtraction, Cause: err})
		return
	}

	log = log.With(
		slog.String("api_method", params.APIMethod),
		slog.String("bot", botapi.MaskToken(params.BotToken)))

	h.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		APIMethod: params.APIMethod,
	})

	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, log, &ProxyError{Op: "read_body", APIMethod: params.APIMethod, Kind: kindOf(err), Cause: err})
		return
	}

	outReq, err := h.newUpstreamRequest(r, params, body)
	if err != nil {
		h.fail(w, log, &ProxyError{Op: "build_request", APIMethod: params.APIMethod, Kind: ErrUpstreamUnavailable, Cause: err})
		return
	}

	start := time.Now()
	res, err := h.forward(outReq, params.APIMethod)
	duration := time.Since(start)
	if err != nil {
		if r.Context().Err() != nil {
			log.Info("Client went away before upstream answered", slog.Any("err", err))
			return
		}
		h.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventUpstreamError,
			APIMethod: params.APIMethod,
			ErrorType: errorType(err),
		})
		h.fail(w, log, err)
		return
	}

	w.Header().Set("Content-Type", res.contentType)
	w.WriteHeader(res.statusCode)
	if _, err := w.Write(res.body); err != nil {
		log.Debug("Failed to write response", slog.Any("err", err))
	}

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		APIMethod:  params.APIMethod,
		Duration:   duration,
		StatusCode: res.statusCode,
	})

	log.Debug("Relayed upstream response",
		slog.Int("status", res.statusCode),
		slog.Duration("upstream_duration", duration))
}

// readBody returns the whole body of a POST request and nil for any other
// method, in which case nothing is sent upstream.
func (h *ProxyHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if !strings.EqualFold(r.Method, http.MethodPost) {
		return nil, nil
	}

	reader := io.Reader(r.Body)
	if h.maxBodyBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	return io.ReadAll(reader)
}

func (h *ProxyHandler) newUpstreamRequest(r *http.Request, params botapi.PathParams, body []byte) (*http.Request, error) {
	target := botapi.UpstreamURL(h.backend.URL(), params, r.URL.RawQuery)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), normalizeMethod(r.Method), target.String(), reader)
	if err != nil {
		return nil, err
	}

	outReq.Header = r.Header.Clone()
	if outReq.Header == nil {
		outReq.Header = make(http.Header)
	}
	// The relayed response carries no Content-Encoding, so let the
	// transport negotiate and decode compression itself.
	outReq.Header.Del("Accept-Encoding")
	outReq.Host = h.backend.Host()

	return outReq, nil
}

// forward performs the outbound call under the circuit breaker and reads the
// full upstream body. It is called at most once per inbound request.
func (h *ProxyHandler) forward(outReq *http.Request, apiMethod string) (*upstreamResponse, error) {
	done := func(bool) {}
	trial := false
	if h.breaker != nil {
		var err error
		done, err = h.breaker.Allow()
		if err != nil {
			return nil, &ProxyError{Op: "forward", APIMethod: apiMethod, Kind: ErrCircuitOpen, Cause: err}
		}
		trial = h.breaker.State() == circuitbreaker.StateHalfOpen
	}

	resp, err := h.backend.Do(outReq)
	if err != nil {
		failed(outReq.Context(), done, trial)
		return nil, &ProxyError{Op: "forward", APIMethod: apiMethod, Kind: transportKind(err), Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		failed(outReq.Context(), done, trial)
		kind := ErrUpstreamBodyRead
		if isTimeout(err) {
			kind = ErrUpstreamTimeout
		}
		return nil, &ProxyError{Op: "read_response", APIMethod: apiMethod, Kind: kind, Cause: err}
	}

	done(resp.StatusCode < http.StatusInternalServerError)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	return &upstreamResponse{
		statusCode:  resp.StatusCode,
		contentType: contentType,
		body:        data,
	}, nil
}

func (h *ProxyHandler) fail(w http.ResponseWriter, log *slog.Logger, err error) {
	status, description := statusFor(err)

	if status >= http.StatusInternalServerError {
		log.Error("Proxy request failed", slog.Int("status", status), slog.Any("err", err))
	} else {
		log.Warn("Rejected proxy request", slog.Int("status", status), slog.Any("err", err))
	}

	botapi.WriteError(w, status, description)
}

func (h *ProxyHandler) emitEvent(event metrics.MetricEvent) {
	if h.metricsCollector == nil {
		return
	}

	h.metricsCollector.Emit(event)
}

func kindOf(bodyErr error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(bodyErr, &maxBytesErr) {
		return ErrBodyTooLarge
	}
	return ErrBodyRead
}

func transportKind(err error) error {
	if isTimeout(err) {
		return ErrUpstreamTimeout
	}
	return ErrUpstreamUnavailable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// failed reports a failed upstream call to the breaker. A call the client
// abandoned says nothing about the upstream: it is not counted while the
// circuit is closed, and counts as a failure for a half-open trial so that
// it can never close the circuit.
func failed(ctx context.Context, done func(bool), trial bool) {
	if clientCanceled(ctx) && !trial {
		return
	}
	done(false)
}

// clientCanceled reports whether the inbound client gave up.
func clientCanceled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

var standardMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// normalizeMethod upper-cases standard method names; the router matches them
// case-insensitively but upstream only accepts the canonical form. Other
// tokens are forwarded as received.
func normalizeMethod(method string) string {
	for _, m := range standardMethods {
		if strings.EqualFold(method, m) {
			return m
		}
	}
	return method
}
