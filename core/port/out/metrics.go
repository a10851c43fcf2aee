package out

import "time"

// MetricsSink is the append-only event surface injected into core components.
// Implementations must be safe for concurrent use.
type MetricsSink interface {
	// IncrCounter adds delta to the named counter.
	IncrCounter(name string, delta int64)

	// Observe records one duration sample into the named histogram.
	Observe(name string, d time.Duration)
}
