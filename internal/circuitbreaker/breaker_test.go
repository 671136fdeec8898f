package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tg-bot-proxy/internal/circuitbreaker"
)

func fail(cb *circuitbreaker.CircuitBreaker, times int) {
	for i := 0; i < times; i++ {
		done, err := cb.Allow()
		Expect(err).NotTo(HaveOccurred())
		done(false)
	}
}

func succeed(cb *circuitbreaker.CircuitBreaker) {
	done, err := cb.Allow()
	Expect(err).NotTo(HaveOccurred())
	done(true)
}

var _ = Describe("CircuitBreaker", func() {
	var cb *circuitbreaker.CircuitBreaker

	Describe("NewCircuitBreaker", func() {
		It("should create a circuit breaker in closed state", func() {
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				Name:             "api.telegram.org",
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			})
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})
	})

	Describe("State transitions", func() {
		var (
			mutex       sync.Mutex
			transitions []string
		)

		BeforeEach(func() {
			transitions = nil
			cb = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
				Name:             "upstream",
				FailureThreshold: 3,
				ResetTimeout:     100 * time.Millisecond,
				HalfOpenRequests: 1,
				OnStateChange: func(from, to circuitbreaker.State) {
					mutex.Lock()
					defer mutex.Unlock()
					transitions = append(transitions, from.String()+"->"+to.String())
				},
			})
		})

		recorded := func() []string {
			mutex.Lock()
			defer mutex.Unlock()
			return append([]string(nil), transitions...)
		}

		Context("when in CLOSED state", func() {
			It("should allow requests", func() {
				_, err := cb.Allow()
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remain closed after failures below threshold", func() {
				fail(cb, 2)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})

			It("should transition to OPEN after reaching failure threshold", func() {
				fail(cb, 3)
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
				Expect(recorded()).To(Equal([]string{"CLOSED->OPEN"}))
			})

			It("should reset the consecutive failure count on success", func() {
				fail(cb, 2)
				succeed(cb)
				fail(cb, 2)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
			})
		})

		Context("when in OPEN state", func() {
			BeforeEach(func() {
				fail(cb, 3)
			})

			It("should reject requests with ErrOpen", func() {
				done, err := cb.Allow()
				Expect(err).To(MatchError(circuitbreaker.ErrOpen))
				Expect(done).To(BeNil())
			})

			It("should transition to HALF-OPEN after reset timeout", func() {
				Eventually(cb.State).WithTimeout(time.Second).Should(Equal(circuitbreaker.StateHalfOpen))
			})
		})

		Context("when in HALF-OPEN state", func() {
			BeforeEach(func() {
				fail(cb, 3)
				Eventually(cb.State).WithTimeout(time.Second).Should(Equal(circuitbreaker.StateHalfOpen))
			})

			It("should only let the probe request through", func() {
				done, err := cb.Allow()
				Expect(err).NotTo(HaveOccurred())

				_, err = cb.Allow()
				Expect(err).To(MatchError(circuitbreaker.ErrOpen))

				done(true)
			})

			It("should transition to CLOSED on success", func() {
				succeed(cb)
				Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
				Expect(recorded()).To(Equal([]string{"CLOSED->OPEN", "OPEN->HALF-OPEN", "HALF-OPEN->CLOSED"}))
			})

			It("should transition back to OPEN on failure", func() {
				fail(cb, 1)
				Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
			})
		})
	})

	Describe("State.String", func() {
		It("should return correct string representation", func() {
			Expect(circuitbreaker.StateClosed.String()).To(Equal("CLOSED"))
			Expect(circuitbreaker.StateOpen.String()).To(Equal("OPEN"))
			Expect(circuitbreaker.StateHalfOpen.String()).To(Equal("HALF-OPEN"))
			Expect(circuitbreaker.State(42).String()).To(Equal("UNKNOWN"))
		})
	})
})
