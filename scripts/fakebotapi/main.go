// Fakebotapi is a stand-in for the Telegram Bot API used to run the proxy
// locally without a real bot token.
//
// Usage:
//
//	go run ./scripts/fakebotapi -port 8081
//	TGPROXY_UPSTREAM_URL=http://localhost:8081 go run ./cmd
//
// Tokens must look like "<id>:<secret>"; anything else gets a 401. getMe,
// sendMessage and getUpdates return canned results, getUpdates waits for
// the requested long poll timeout, and -fail-rate makes a share of calls
// answer 502 to exercise the circuit breaker.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/tg-bot-proxy/internal/botapi"
)

type apiResponse struct {
	OK          bool   `json:"ok"`
	Result      any    `json:"result,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type user struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// message mirrors the Bot API Message. TraceID is not part of the Bot API;
// it lets callers correlate a reply with the fake's log.
type message struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Chat      chat   `json:"chat"`
	Text      string `json:"text"`
	TraceID   string `json:"fake_trace_id"`
}

type chat struct {
	ID int64 `json:"id"`
}

type fakeAPI struct {
	logger    *slog.Logger
	failRate  float64
	maxPoll   time.Duration
	nextMsgID atomic.Int64
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	failRate := flag.Float64("fail-rate", 0, "share of calls answered with 502 (0-1)")
	maxPoll := flag.Duration("max-poll", 5*time.Second, "upper bound for getUpdates long polling")
	flag.Parse()

	api := &fakeAPI{
		logger:   slog.New(slog.NewTextHandler(os.Stdout, nil)),
		failRate: *failRate,
		maxPoll:  *maxPoll,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", api.ServeHTTP)

	addr := fmt.Sprintf(":%d", *port)
	api.logger.Info("starting fake Bot API", slog.String("addr", addr), slog.Float64("fail_rate", *failRate))
	if err := http.ListenAndServe(addr, mux); err != nil {
		api.logger.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		// The real root redirects to the documentation.
		http.Redirect(w, r, "https://core.telegram.org/bots", http.StatusFound)
		return
	}

	params, err := botapi.Parse(r.URL.EscapedPath())
	if err != nil {
		a.write(w, http.StatusNotFound, apiResponse{ErrorCode: http.StatusNotFound, Description: "Not Found"})
		return
	}

	body, _ := io.ReadAll(r.Body)
	a.logger.Info("request",
		slog.String("method", r.Method),
		slog.String("path", botapi.RedactPath(r.URL.EscapedPath())),
		slog.String("query", r.URL.RawQuery),
		slog.Int("body_bytes", len(body)))

	if !strings.Contains(params.BotToken, ":") {
		a.write(w, http.StatusUnauthorized, apiResponse{ErrorCode: http.StatusUnauthorized, Description: "Unauthorized"})
		return
	}

	if a.failRate > 0 && rand.Float64() < a.failRate {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	values := requestValues(r, body)

	switch strings.ToLower(params.APIMethod) {
	case "getme":
		a.write(w, http.StatusOK, apiResponse{OK: true, Result: botUser(params.BotToken)})

	case "sendmessage":
		text := values.Get("text")
		if text == "" {
			a.write(w, http.StatusBadRequest, apiResponse{ErrorCode: http.StatusBadRequest, Description: "Bad Request: message text is empty"})
			return
		}
		chatID, _ := strconv.ParseInt(values.Get("chat_id"), 10, 64)
		a.write(w, http.StatusOK, apiResponse{OK: true, Result: message{
			MessageID: a.nextMsgID.Add(1),
			Date:      time.Now().Unix(),
			Chat:      chat{ID: chatID},
			Text:      text,
			TraceID:   uuid.NewString(),
		}})

	case "getupdates":
		a.longPoll(r, values.Get("timeout"))
		a.write(w, http.StatusOK, apiResponse{OK: true, Result: []any{}})

	default:
		a.write(w, http.StatusNotFound, apiResponse{ErrorCode: http.StatusNotFound, Description: "Not Found: method not found"})
	}
}

func (a *fakeAPI) longPoll(r *http.Request, timeout string) {
	seconds, err := strconv.Atoi(timeout)
	if err != nil || seconds <= 0 {
		return
	}

	wait := min(time.Duration(seconds)*time.Second, a.maxPoll)
	select {
	case <-time.After(wait):
	case <-r.Context().Done():
	}
}

func (a *fakeAPI) write(w http.ResponseWriter, status int, res apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		a.logger.Debug("write failed", slog.Any("err", err))
	}
}

// requestValues merges query parameters with a JSON or form encoded body,
// which is how the Bot API accepts arguments.
func requestValues(r *http.Request, body []byte) url.Values {
	values := r.URL.Query()

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		fields := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&fields); err == nil {
			for k, v := range fields {
				values.Set(k, fmt.Sprint(v))
			}
		}
		return values
	}

	if form, err := url.ParseQuery(string(body)); err == nil {
		for k, v := range form {
			values[k] = v
		}
	}
	return values
}

func botUser(token string) user {
	idPart, _, _ := strings.Cut(token, ":")
	id, _ := strconv.ParseInt(idPart, 10, 64)
	return user{ID: id, IsBot: true, FirstName: "Fake Bot", Username: "fake_bot"}
}
