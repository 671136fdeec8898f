// Loadtest drives concurrent Bot API traffic through the proxy and reports
// throughput, status codes and latency percentiles per API method.
//
// Usage:
//
//	go run ./scripts/loadtest -proxy http://localhost:8080 -token 123:abc -concurrency 20 -requests 2000
//	go run ./scripts/loadtest -methods getMe,sendMessage -out summary.json -stats http://localhost:9090/stats
//
// Requests cycle through -methods. sendMessage is sent as a JSON POST, every
// other method as a GET. With -stats the proxy's own snapshot is printed
// after the run for comparison.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type methodStats struct {
	Count     int32
	Success   int32
	Failure   int32
	Latencies []time.Duration
}

type methodSummary struct {
	Total   int32   `json:"total"`
	Success int32   `json:"success"`
	Failure int32   `json:"failure"`
	P50     float64 `json:"p50_ms"`
	P90     float64 `json:"p90_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
}

func main() {
	var (
		proxy       = flag.String("proxy", "http://localhost:8080", "Proxy base URL")
		token       = flag.String("token", "123456:TEST", "Bot token placed in the path")
		methods     = flag.String("methods", "getMe,sendMessage", "Comma separated API methods to cycle through")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		timeout     = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		statsURL    = flag.String("stats", "", "Proxy /stats URL to print after the run (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	apiMethods := strings.Split(*methods, ",")
	client := &http.Client{Timeout: *timeout}

	var (
		total, success, failure atomic.Int32
		mu                      sync.Mutex
		perMethod               = make(map[string]*methodStats)
		statusCodes             = make(map[int]int32)
		wg                      sync.WaitGroup
	)

	jobs := make(chan int)
	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				apiMethod := strings.TrimSpace(apiMethods[idx%len(apiMethods)])
				total.Add(1)

				req, err := newRequest(*proxy, *token, apiMethod, idx)
				if err != nil {
					failure.Add(1)
					continue
				}

				start := time.Now()
				resp, err := client.Do(req)
				dur := time.Since(start)

				ok := false
				status := 0
				if err == nil {
					status = resp.StatusCode
					ok = status >= 200 && status <= 299
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}

				if ok {
					success.Add(1)
				} else {
					failure.Add(1)
				}

				mu.Lock()
				ms, found := perMethod[apiMethod]
				if !found {
					ms = &methodStats{}
					perMethod[apiMethod] = ms
				}
				ms.Count++
				if ok {
					ms.Success++
				} else {
					ms.Failure++
				}
				ms.Latencies = append(ms.Latencies, dur)
				if status != 0 {
					statusCodes[status]++
				}
				mu.Unlock()

				if *verbose {
					fmt.Printf("[%d] idx=%d method=%s status=%d dur=%v err=%v\n", workerID, idx, apiMethod, status, dur, err)
				}
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)
	throughput := float64(total.Load()) / totalDuration.Seconds()

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Proxy: %s\n", *proxy)
	fmt.Printf("Requests: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Total sent: %d  Success: %d  Failure: %d\n", total.Load(), success.Load(), failure.Load())
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", totalDuration, throughput)

	fmt.Println("\nStatus codes:")
	var codes []int
	for k := range statusCodes {
		codes = append(codes, k)
	}
	sort.Ints(codes)
	for _, k := range codes {
		fmt.Printf("  %d -> %d\n", k, statusCodes[k])
	}

	fmt.Println("\nPer method:")
	summaries := make(map[string]methodSummary, len(perMethod))
	var names []string
	for k := range perMethod {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, name := range names {
		s := summarize(perMethod[name])
		summaries[name] = s
		fmt.Printf("  %s -> total=%d success=%d failure=%d p50=%.1fms p90=%.1fms p95=%.1fms p99=%.1fms\n",
			name, s.Total, s.Success, s.Failure, s.P50, s.P90, s.P95, s.P99)
	}

	if *outJSON != "" {
		report := map[string]any{
			"proxy":          *proxy,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total.Load(),
			"success":        success.Load(),
			"failure":        failure.Load(),
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
			"methods":        summaries,
		}
		if err := writeJSON(*outJSON, report); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write json summary: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if *statsURL != "" {
		printProxyStats(client, *statsURL)
	}

	if failure.Load() > 0 {
		os.Exit(2)
	}
}

func newRequest(proxy, token, apiMethod string, idx int) (*http.Request, error) {
	target := strings.TrimRight(proxy, "/") + "/bot" + token + "/" + apiMethod

	if strings.EqualFold(apiMethod, "sendMessage") {
		body := fmt.Sprintf(`{"chat_id":%d,"text":"load test %d"}`, 1000+idx%50, idx)
		req, err := http.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	return http.NewRequest(http.MethodGet, target, nil)
}

func summarize(ms *methodStats) methodSummary {
	s := methodSummary{Total: ms.Count, Success: ms.Success, Failure: ms.Failure}
	if len(ms.Latencies) == 0 {
		return s
	}

	sorted := make([]time.Duration, len(ms.Latencies))
	copy(sorted, ms.Latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	pick := func(p float64) float64 {
		return float64(sorted[int(float64(len(sorted)-1)*p)].Microseconds()) / 1000
	}
	s.P50, s.P90, s.P95, s.P99 = pick(0.50), pick(0.90), pick(0.95), pick(0.99)
	return s
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProxyStats(client *http.Client, statsURL string) {
	resp, err := client.Get(statsURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch proxy stats: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	body, _ := io.ReadAll(resp.Body)
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Printf("\nProxy stats (%d):\n%s\n", resp.StatusCode, body)
		return
	}
	fmt.Printf("\nProxy stats:\n%s\n", pretty.String())
}
