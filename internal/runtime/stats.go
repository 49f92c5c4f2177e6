package runtime

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// RequestStats is a point-in-time view of the dispatches of one request type.
type RequestStats struct {
	RequestType         string            `json:"request_type"`
	Dispatched          uint64            `json:"dispatched"`
	Failed              uint64            `json:"failed"`
	Recovered           uint64            `json:"recovered"`
	TotalProcessingTime int64             `json:"total_processing_time_ns"`
	LastDispatchedAt    time.Time         `json:"last_dispatched_at"`
	Latency             LatencyMetrics    `json:"latency"`
	Throughput          ThroughputMetrics `json:"throughput"`
	Errors              ErrorBreakdown    `json:"errors"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	RequestsInWindow uint64  `json:"requests_in_window"`
}

// ErrorBreakdown classifies failed dispatches.
type ErrorBreakdown struct {
	Rejected  uint64 `json:"rejected"`
	Panics    uint64 `json:"panics"`
	Timeouts  uint64 `json:"timeouts"`
	Other     uint64 `json:"other"`
	LastError string `json:"last_error,omitempty"`
}

func (e *ErrorBreakdown) record(err error) {
	var panicErr *errspkg.PanicError
	switch {
	case errors.As(err, &panicErr):
		e.Panics++
	case errspkg.IsPermanent(err):
		e.Rejected++
	case errors.Is(err, context.DeadlineExceeded):
		e.Timeouts++
	default:
		e.Other++
	}
	e.LastError = err.Error()
}

type requestStatsRecorder struct {
	mu         sync.Mutex
	stats      RequestStats
	latency    *latencyWindow
	throughput *throughputWindow
}

type statsRegistry struct {
	recorders sync.Map // reflect.Type -> *requestStatsRecorder
}

func newStatsRegistry() *statsRegistry {
	return &statsRegistry{}
}

func (r *statsRegistry) recorderFor(requestType reflect.Type) *requestStatsRecorder {
	if existing, ok := r.recorders.Load(requestType); ok {
		return existing.(*requestStatsRecorder)
	}
	recorder := &requestStatsRecorder{
		stats:      RequestStats{RequestType: typeName(requestType)},
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
	}
	actual, _ := r.recorders.LoadOrStore(requestType, recorder)
	return actual.(*requestStatsRecorder)
}

// record is called once per Send. Requests answered by an exception handler
// count as recovered, not failed.
func (r *statsRegistry) record(requestType reflect.Type, duration time.Duration, err error, recovered bool) {
	recorder := r.recorderFor(requestType)
	now := time.Now()

	recorder.mu.Lock()
	defer recorder.mu.Unlock()

	s := &recorder.stats
	s.Dispatched++
	s.TotalProcessingTime += int64(duration)
	s.LastDispatchedAt = now.UTC()
	if recovered {
		s.Recovered++
	}
	if err != nil {
		s.Failed++
		s.Errors.record(err)
	}
	recorder.latency.Add(duration)

	window := recorder.throughput.AddAndSnapshot(now)
	s.Throughput = ThroughputMetrics{
		CurrentRPS:       window.CurrentRPS,
		WindowSeconds:    window.WindowSeconds,
		RequestsInWindow: uint64(window.Count),
	}
}

func (r *statsRegistry) snapshot() []RequestStats {
	var out []RequestStats
	r.recorders.Range(func(_, value any) bool {
		recorder := value.(*requestStatsRecorder)
		recorder.mu.Lock()
		s := recorder.stats
		s.Latency = recorder.latency.Snapshot()
		recorder.mu.Unlock()
		out = append(out, s)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestType < out[j].RequestType })
	return out
}

// Stats returns per request type dispatch statistics sorted by type name.
func (m *Mediator) Stats() []RequestStats {
	return m.stats.snapshot()
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last, SampleSize: lw.filled}
	if lw.filled == 0 {
		return metrics
	}

	samples := make([]int64, 0, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := (lw.next - lw.filled + i + len(lw.samples)) % len(lw.samples)
		samples = append(samples, lw.samples[idx])
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	metrics.AverageNs = sum / int64(len(samples))
	metrics.P50Ns = percentile(samples, 0.50)
	metrics.P95Ns = percentile(samples, 0.95)
	metrics.P99Ns = percentile(samples, 0.99)
	return metrics
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, quantile float64) int64 {
	switch {
	case len(sorted) == 0:
		return 0
	case quantile <= 0:
		return sorted[0]
	case quantile >= 1:
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower, upper := int(math.Floor(pos)), int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	idx := sort.Search(len(tw.samples), func(i int) bool { return !tw.samples[i].Before(cutoff) })
	if idx > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[idx:]...)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}
