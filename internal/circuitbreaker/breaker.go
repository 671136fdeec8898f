package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking Requests
	StateHalfOpen              // Testing with probe requests
)

// ErrOpen is returned by Allow while the circuit rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// StateChangeFunc observes transitions.
type StateChangeFunc func(from, to State)

type Settings struct {
	Name             string
	FailureThreshold int
	ResetTimeout     time.Duration
	// HalfOpenRequests is the number of probe calls allowed, and required to
	// succeed, before the circuit closes again.
	HalfOpenRequests int
	OnStateChange    StateChangeFunc
}

// CircuitBreaker trips after FailureThreshold consecutive failures and fails
// fast until ResetTimeout elapses. Calls are never retried.
type CircuitBreaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

func NewCircuitBreaker(s Settings) *CircuitBreaker {
	threshold := toUint32(s.FailureThreshold)
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: toUint32(s.HalfOpenRequests),
		Timeout:     s.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}

	if s.OnStateChange != nil {
		settings.OnStateChange = func(_ string, from, to gobreaker.State) {
			s.OnStateChange(fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &CircuitBreaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings)}
}

// Allow reports whether a call may proceed. On success the caller must
// invoke done exactly once with the outcome of the call.
func (cb *CircuitBreaker) Allow() (done func(success bool), err error) {
	done, err = cb.cb.Allow()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return done, err
}

func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func toUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
