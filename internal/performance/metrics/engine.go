// Package metrics aggregates request timings and failure events for a run.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Phase identifies the load phase a run is in.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDone     Phase = "done"
)

// Engine collects request latencies using HDR histograms.
//
// Engine is safe for concurrent use. Counters use atomic operations and
// histograms are mutex protected.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	// Per-page histograms
	requestHists   map[string]*hdrhistogram.Histogram
	requestFailed  map[string]int64
	requestHistsMu sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	httpFailed      atomic.Int64
	totalBytes      atomic.Int64

	activeVUs atomic.Int32

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time
	endTime   atomic.Pointer[time.Time]

	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	return &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requestHists:  make(map[string]*hdrhistogram.Histogram),
		requestFailed: make(map[string]int64),
		currentPhase:  PhaseInit,
		startTime:     time.Now(),
		config:        config,
	}
}

// RecordLatency records one request.
//
// Parameters:
//   - duration: The request latency
//   - name: Page name for the per-page breakdown (empty string to skip)
//   - success: Whether the request passed its health check
//   - bytes: Number of body bytes received
func (e *Engine) RecordLatency(duration time.Duration, name string, success bool, bytes int64) {
	latencyMicros := duration.Microseconds()
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if name != "" {
		e.recordRequestHistogram(name, latencyMicros, success)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}
}

// RecordHTTPFailure counts a request that got no response or a status
// outside 2xx/3xx. It is tracked apart from health-check failures, which
// also cover slow responses.
func (e *Engine) RecordHTTPFailure() {
	e.httpFailed.Add(1)
}

// IsHTTPFailure reports whether status counts towards the HTTP failure rate.
// Zero means no response was received.
func IsHTTPFailure(status int) bool {
	return status < 200 || status >= 400
}

// recordRequestHistogram records into a per-page histogram.
// HDR histogram RecordValue is not thread-safe, so the lock is required.
func (e *Engine) recordRequestHistogram(name string, latencyMicros int64, success bool) {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	hist, exists := e.requestHists[name]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.requestHists[name] = hist
	}
	_ = hist.RecordValue(latencyMicros)
	if !success {
		e.requestFailed[name]++
	}
}

// SetPhase updates the current phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Stop freezes the elapsed time used for rate calculations.
func (e *Engine) Stop() {
	now := time.Now()
	e.endTime.CompareAndSwap(nil, &now)
}

func (e *Engine) elapsed() time.Duration {
	if end := e.endTime.Load(); end != nil {
		return end.Sub(e.startTime)
	}
	return time.Since(e.startTime)
}

func statsFrom(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := statsFrom(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := e.elapsed()
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()
	httpFailed := e.httpFailed.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate, httpFailedRate := 0.0, 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
		httpFailedRate = float64(httpFailed) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		HTTPFailed:      httpFailed,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		ErrorRate:       errorRate,
		HTTPFailedRate:  httpFailedRate,
		ActiveVUs:       e.GetActiveVUs(),
		CurrentPhase:    e.GetPhase(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// GetRequestStats returns per-page statistics sorted by name.
func (e *Engine) GetRequestStats() []RequestStats {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	result := make([]RequestStats, 0, len(e.requestHists))
	for name, hist := range e.requestHists {
		result = append(result, RequestStats{
			Name:    name,
			Count:   hist.TotalCount(),
			Failed:  e.requestFailed[name],
			Latency: statsFrom(hist),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Snapshot contains a point-in-time view of all metrics.
//
// FailedRequests and ErrorRate count failed health checks, slow responses
// included. HTTPFailed and HTTPFailedRate count only transport errors and
// statuses outside 2xx/3xx.
type Snapshot struct {
	TotalRequests   int64         `json:"totalRequests"`
	SuccessRequests int64         `json:"successRequests"`
	FailedRequests  int64         `json:"failedRequests"`
	HTTPFailed      int64         `json:"httpFailed"`
	TotalBytes      int64         `json:"totalBytes"`
	Latency         LatencyStats  `json:"latency"`
	RPS             float64       `json:"rps"`
	ErrorRate       float64       `json:"errorRate"`
	HTTPFailedRate  float64       `json:"httpFailedRate"`
	ActiveVUs       int           `json:"activeVUs"`
	CurrentPhase    Phase         `json:"currentPhase"`
	Elapsed         time.Duration `json:"elapsed"`
	StartTime       time.Time     `json:"startTime"`
	Timestamp       time.Time     `json:"timestamp"`
}

// RequestStats contains statistics for a single page.
type RequestStats struct {
	Name    string       `json:"name"`
	Count   int64        `json:"count"`
	Failed  int64        `json:"failed"`
	Latency LatencyStats `json:"latency"`
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
