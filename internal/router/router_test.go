package router_test

import (
	"net/http"
	"net/http/httptest"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tg-bot-proxy/internal/router"
)

func namedHandler(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", name)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(name))
	})
}

func handlerName(h http.Handler) string {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w.Header().Get("X-Handler")
}

var _ = Describe("Router", func() {
	var (
		rt      *router.Router
		pattern *regexp.Regexp
	)

	BeforeEach(func() {
		rt = router.New()
		pattern = regexp.MustCompile(`(?i)^/bot(?P<bot_token>[^/]+)/(?P<api_method>[a-z]+)`)
	})

	Describe("Resolve", func() {
		It("should return nothing for an empty router", func() {
			h, ok := rt.Resolve(httptest.NewRequest(http.MethodGet, "/botABC/getMe", nil))
			Expect(ok).To(BeFalse())
			Expect(h).To(BeNil())
		})

		It("should prefer the first registered rule when several match", func() {
			rt.Get(pattern, namedHandler("first")).
				Get(pattern, namedHandler("second")).
				All(namedHandler("fallback"))

			h, ok := rt.Resolve(httptest.NewRequest(http.MethodGet, "/botABC/getMe", nil))
			Expect(ok).To(BeTrue())
			Expect(handlerName(h)).To(Equal("first"))
		})

		It("should skip rules whose predicates do not all hold", func() {
			rt.Post(pattern, namedHandler("post")).
				Get(pattern, namedHandler("get"))

			h, ok := rt.Resolve(httptest.NewRequest(http.MethodGet, "/botABC/getMe", nil))
			Expect(ok).To(BeTrue())
			Expect(handlerName(h)).To(Equal("get"))
		})

		It("should short-circuit on the first false predicate", func() {
			calls := 0
			counting := func(*http.Request) bool {
				calls++
				return true
			}
			never := func(*http.Request) bool { return false }

			rt.Handle(namedHandler("x"), never, counting)

			_, ok := rt.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
			Expect(ok).To(BeFalse())
			Expect(calls).To(Equal(0))
		})

		It("should not mutate the rule list", func() {
			rt.Get(pattern, namedHandler("get"))
			for i := 0; i < 5; i++ {
				rt.Resolve(httptest.NewRequest(http.MethodGet, "/botABC/getMe", nil))
			}
			Expect(rt.Len()).To(Equal(1))
		})
	})

	Describe("All", func() {
		It("should match every method and path when registered alone", func() {
			rt.All(namedHandler("any"))

			for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
				for _, path := range []string{"/", "/botABC/getMe", "/not-a-bot-path", "/a/b/c"} {
					h, ok := rt.Resolve(httptest.NewRequest(method, path, nil))
					Expect(ok).To(BeTrue(), "%s %s", method, path)
					Expect(handlerName(h)).To(Equal("any"))
				}
			}
		})

		It("should act as a last resort after specific rules", func() {
			rt.Get(pattern, namedHandler("get")).All(namedHandler("fallback"))

			h, _ := rt.Resolve(httptest.NewRequest(http.MethodGet, "/botABC/getMe", nil))
			Expect(handlerName(h)).To(Equal("get"))

			h, _ = rt.Resolve(httptest.NewRequest(http.MethodDelete, "/botABC/getMe", nil))
			Expect(handlerName(h)).To(Equal("fallback"))
		})
	})

	Describe("ServeHTTP", func() {
		It("should invoke the matched handler", func() {
			rt.Get(pattern, namedHandler("get"))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/botABC123/getMe", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("get"))
		})

		It("should answer unmatched requests with the JSON 404", func() {
			rt.Get(pattern, namedHandler("get")).Post(pattern, namedHandler("post"))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/not-a-bot-path", nil))

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(w.Body.String()).To(MatchJSON(`{"ok":false,"error_code":404,"description":"No matching route found"}`))
		})

		It("should answer a method outside the rules with the JSON 404", func() {
			rt.Get(pattern, namedHandler("get")).Post(pattern, namedHandler("post"))

			w := httptest.NewRecorder()
			rt.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/botABC/getMe", nil))

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})

var _ = Describe("Predicates", func() {
	Describe("Method", func() {
		DescribeTable("should compare methods case-insensitively",
			func(configured, requested string, expected bool) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Method = requested
				Expect(router.Method(configured)(req)).To(Equal(expected))
			},
			Entry("upper vs upper", "GET", "GET", true),
			Entry("lower configured", "get", "GET", true),
			Entry("lower request", "GET", "get", true),
			Entry("mixed case", "GET", "Get", true),
			Entry("different method", "GET", "POST", false),
		)
	})

	Describe("Path", func() {
		var p router.Predicate

		BeforeEach(func() {
			p = router.Path(regexp.MustCompile(`(?i)^/bot(?P<bot_token>[^/]+)/(?P<api_method>[a-z]+)`))
		})

		DescribeTable("should require the match to cover the whole path",
			func(path string, expected bool) {
				Expect(p(httptest.NewRequest(http.MethodGet, path, nil))).To(Equal(expected))
			},
			Entry("exact bot path", "/bot123/getMe", true),
			Entry("upper-case prefix", "/BOT123/getMe", true),
			Entry("token with symbols", "/bot123:AA-bb_cc/sendMessage", true),
			Entry("trailing segment", "/bot123/getMe/extra", false),
			Entry("trailing slash", "/bot123/getMe/", false),
			Entry("leading junk", "/xbot123/getMe", false),
			Entry("digits in method", "/bot123/get2", false),
			Entry("missing method", "/bot123/", false),
			Entry("root", "/", false),
			Entry("escaped slash in token", "/bot12%2F3/getMe", true),
		)

		It("should ignore the query string", func() {
			Expect(p(httptest.NewRequest(http.MethodGet, "/bot123/getMe?x=1", nil))).To(BeTrue())
		})

		It("should reject an unanchored pattern matching only a substring", func() {
			inner := router.Path(regexp.MustCompile(`getMe`))
			Expect(inner(httptest.NewRequest(http.MethodGet, "/bot123/getMe", nil))).To(BeFalse())
			Expect(inner(httptest.NewRequest(http.MethodGet, "/getMe", nil))).To(BeFalse())
		})
	})
})
