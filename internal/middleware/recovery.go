package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/angeloszaimis/tg-bot-proxy/internal/botapi"
)

// Recovery turns a panic in a downstream handler into a JSON 500 and logs it.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.Error("Recovered from panic",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", botapi.RedactPath(r.URL.EscapedPath())),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))

				botapi.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
