// Package metrics provides the in-process metrics sink: named counters plus
// latency histograms with percentile calculations.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker with P50/P95/P99 Percentiles
// =============================================================================

// LatencyTracker tracks durations and calculates percentiles over a sliding
// window of recent samples.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	sorted     bool
}

// NewLatencyTracker creates a new latency tracker.
// windowSize determines how many samples to keep for percentile calculation.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records a duration sample.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// Drop the oldest 10% to avoid shifting on every record
		removeCount := lt.maxSamples / 10
		if removeCount < 1 {
			removeCount = 1
		}
		lt.samples = lt.samples[removeCount:]
	}

	lt.samples = append(lt.samples, d.Microseconds())
	lt.sorted = false
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Stats returns latency statistics including percentiles.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	n := len(lt.samples)
	if n == 0 {
		return LatencyStats{}
	}

	if !lt.sorted {
		sort.Slice(lt.samples, func(i, j int) bool { return lt.samples[i] < lt.samples[j] })
		lt.sorted = true
	}

	var sum int64
	for _, v := range lt.samples {
		sum += v
	}

	return LatencyStats{
		Count: int64(n),
		Min:   time.Duration(lt.samples[0]) * time.Microsecond,
		Max:   time.Duration(lt.samples[n-1]) * time.Microsecond,
		Avg:   time.Duration(sum/int64(n)) * time.Microsecond,
		P50:   time.Duration(lt.percentile(0.50)) * time.Microsecond,
		P95:   time.Duration(lt.percentile(0.95)) * time.Microsecond,
		P99:   time.Duration(lt.percentile(0.99)) * time.Microsecond,
	}
}

// percentile must be called with the lock held and samples sorted.
func (lt *LatencyTracker) percentile(p float64) int64 {
	if len(lt.samples) == 0 {
		return 0
	}
	idx := int(float64(len(lt.samples)-1) * p)
	return lt.samples[idx]
}

// =============================================================================
// Metrics Sink (counters + histograms)
// =============================================================================

// Sink is the process-wide metrics sink. It implements out.MetricsSink.
type Sink struct {
	mu        sync.RWMutex
	counters  map[string]int64
	latencies map[string]*LatencyTracker
	window    int
}

// NewSink creates a metrics sink with the given histogram window size.
func NewSink(windowSize int) *Sink {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Sink{
		counters:  make(map[string]int64),
		latencies: make(map[string]*LatencyTracker),
		window:    windowSize,
	}
}

// IncrCounter adds delta to the named counter.
func (s *Sink) IncrCounter(name string, delta int64) {
	s.mu.Lock()
	s.counters[name] += delta
	s.mu.Unlock()
}

// Counter returns the current value of the named counter.
func (s *Sink) Counter(name string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[name]
}

// Observe records one duration sample into the named histogram.
func (s *Sink) Observe(name string, d time.Duration) {
	s.mu.RLock()
	tracker, ok := s.latencies[name]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if tracker, ok = s.latencies[name]; !ok {
			tracker = NewLatencyTracker(s.window)
			s.latencies[name] = tracker
		}
		s.mu.Unlock()
	}

	tracker.Record(d)
}

// Snapshot returns all counters and histogram stats for reporting endpoints.
func (s *Sink) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counters := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	histograms := make(map[string]LatencyStats, len(s.latencies))
	for k, t := range s.latencies {
		histograms[k] = t.Stats()
	}

	return map[string]any{
		"counters":   counters,
		"histograms": histograms,
	}
}
