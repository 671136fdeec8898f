package botapi_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tg-bot-proxy/internal/botapi"
)

var _ = Describe("WriteError", func() {
	It("should write the Bot API error envelope", func() {
		w := httptest.NewRecorder()
		botapi.WriteError(w, http.StatusBadGateway, "Bad Gateway: upstream request failed")

		Expect(w.Code).To(Equal(http.StatusBadGateway))
		Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
		Expect(w.Body.String()).To(MatchJSON(`{"ok":false,"error_code":502,"description":"Bad Gateway: upstream request failed"}`))
	})
})
