// Package circuitbreaker protects the upstream Bot API from being hammered
// while it is failing, and the proxy from piling up stuck calls.
//
// A circuit breaker has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Upstream failing, requests rejected immediately
//   - HALF-OPEN: Testing if upstream recovered
//
// The state machine is provided by github.com/sony/gobreaker.
//
// Usage:
//
//	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
//		Name:             "api.telegram.org",
//		FailureThreshold: 5,
//		ResetTimeout:     30 * time.Second,
//		HalfOpenRequests: 1,
//	})
//	done, err := cb.Allow()
//	if err != nil {
//	    // fail fast
//	}
//	resp, err := client.Do(req)
//	done(err == nil && resp.StatusCode < 500)
package circuitbreaker
