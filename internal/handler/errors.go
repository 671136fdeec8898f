package handler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrPathExtraction indicates a routed request whose path could not be parsed.
	ErrPathExtraction = errors.New("unable to parse bot path")

	// ErrBodyTooLarge indicates the inbound body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrBodyRead indicates the inbound body could not be read.
	ErrBodyRead = errors.New("unable to read request body")

	// ErrCircuitOpen indicates the call was rejected without contacting upstream.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrUpstreamUnavailable indicates the outbound call failed.
	ErrUpstreamUnavailable = errors.New("upstream request failed")

	// ErrUpstreamTimeout indicates the outbound call timed out.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrUpstreamBodyRead indicates the upstream response body could not be read.
	ErrUpstreamBodyRead = errors.New("unable to read upstream response")
)

// ProxyError describes a failed proxy operation.
type ProxyError struct {
	Op        string // Operation that failed
	APIMethod string // Bot API method if known
	Kind      error  // One of the sentinel errors above
	Cause     error  // Underlying error
}

func (e *ProxyError) Error() string {
	msg := fmt.Sprintf("proxy error [%s]", e.Op)
	if e.APIMethod != "" {
		msg += " method=" + e.APIMethod
	}
	msg += ": " + e.Kind.Error()
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ProxyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// statusFor maps an error to the status and description sent to the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrPathExtraction):
		return http.StatusInternalServerError, "Internal Server Error: " + ErrPathExtraction.Error()
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "Request Entity Too Large: " + ErrBodyTooLarge.Error()
	case errors.Is(err, ErrBodyRead):
		return http.StatusBadRequest, "Bad Request: " + ErrBodyRead.Error()
	case errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable, "Service Unavailable: " + ErrCircuitOpen.Error()
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "Gateway Timeout: " + ErrUpstreamTimeout.Error()
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Bad Gateway: " + ErrUpstreamUnavailable.Error()
	case errors.Is(err, ErrUpstreamBodyRead):
		return http.StatusBadGateway, "Bad Gateway: " + ErrUpstreamBodyRead.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// errorType labels upstream failures in metrics.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamBodyRead):
		return "body_read"
	default:
		return "transport"
	}
}
