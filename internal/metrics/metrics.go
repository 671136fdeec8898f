package metrics

import (
	"sort"
	"sync"
	"time"
)

// OtherMethod collects API methods seen after the series limit is reached.
const OtherMethod = "other"

const maxSamples = 1000

type Metrics struct {
	mutex          sync.RWMutex
	maxSeries      int
	requests       map[string]int64
	responseTimes  map[string][]time.Duration
	statusCodes    map[string]map[int]int64
	upstreamErrors map[string]int64
	upstreamHealth bool
	breakerState   string
	startTime      time.Time
}

type Snapshot struct {
	TotalRequests  int64                    `json:"total_requests"`
	Uptime         time.Duration            `json:"uptime"`
	Upstream       string                   `json:"upstream"`
	UpstreamHealth bool                     `json:"upstream_healthy"`
	BreakerState   string                   `json:"breaker_state"`
	UpstreamErrors map[string]int64         `json:"upstream_errors"`
	Methods        map[string]MethodMetrics `json:"methods"`
}

type MethodMetrics struct {
	Requests    int64         `json:"requests"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

// SeriesKey returns the key method is accounted under. Once maxSeries
// distinct methods are known, new ones fold into OtherMethod.
func (m *Metrics) SeriesKey(method string) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.seriesKeyLocked(method)
}

func (m *Metrics) seriesKeyLocked(method string) string {
	if _, ok := m.requests[method]; ok {
		return method
	}
	if m.maxSeries > 0 && len(m.requests) >= m.maxSeries {
		return OtherMethod
	}
	return method
}

func (m *Metrics) IncrementRequests(method string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[m.seriesKeyLocked(method)]++
}

func (m *Metrics) RecordResponse(method string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	key := m.seriesKeyLocked(method)

	m.responseTimes[key] = append(m.responseTimes[key], duration)

	if len(m.responseTimes[key]) > maxSamples {
		m.responseTimes[key] = m.responseTimes[key][1:]
	}

	if m.statusCodes[key] == nil {
		m.statusCodes[key] = make(map[int]int64)
	}
	m.statusCodes[key][statusCode]++
}

func (m *Metrics) RecordUpstreamError(kind string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upstreamErrors[kind]++
}

func (m *Metrics) UpdateHealthStatus(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upstreamHealth = healthy
}

func (m *Metrics) UpdateBreakerState(state string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakerState = state
}

func (m *Metrics) Snapshot(upstream string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:         time.Since(m.startTime),
		Upstream:       upstream,
		UpstreamHealth: m.upstreamHealth,
		BreakerState:   m.breakerState,
		UpstreamErrors: make(map[string]int64, len(m.upstreamErrors)),
		Methods:        make(map[string]MethodMetrics),
	}

	for kind, n := range m.upstreamErrors {
		snap.UpstreamErrors[kind] = n
	}

	// Collect all known API methods
	allMethods := make(map[string]bool)
	for method := range m.requests {
		allMethods[method] = true
	}
	for method := range m.responseTimes {
		allMethods[method] = true
	}

	for method := range allMethods {
		snap.TotalRequests += m.requests[method]

		mm := MethodMetrics{
			Requests:    m.requests[method],
			StatusCodes: make(map[int]int64, len(m.statusCodes[method])),
		}
		for code, n := range m.statusCodes[method] {
			mm.StatusCodes[code] = n
		}

		durations := m.responseTimes[method]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			mm.AvgResponse = average(sorted)
			mm.P50Response = percentile(sorted, 0.50)
			mm.P95Response = percentile(sorted, 0.95)
			mm.P99Response = percentile(sorted, 0.99)
		}

		snap.Methods[method] = mm
	}

	return snap
}

// NewMetrics creates an empty store. maxSeries <= 0 disables the limit.
func NewMetrics(maxSeries int) *Metrics {
	return &Metrics{
		maxSeries:      maxSeries,
		requests:       make(map[string]int64),
		responseTimes:  make(map[string][]time.Duration),
		statusCodes:    make(map[string]map[int]int64),
		upstreamErrors: make(map[string]int64),
		upstreamHealth: true,
		breakerState:   "CLOSED",
		startTime:      time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
