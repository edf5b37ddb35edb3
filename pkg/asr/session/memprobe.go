package session

import (
	"runtime"
	"sync/atomic"
)

// MemoryProbe reports the process's peak heap usage in gigabytes, for the
// Stats event's PeakMemoryGB field. A *Session takes one at construction
// (spec section 9, "Global mutable state": the original reads the peak-
// memory stat from a process-wide counter inline; re-architected here as an
// injectable capability, the same way clock.Clock replaces a direct
// time.Now call), defaulting to NewRuntimeMemoryProbe. Mirrors
// haivivi-giztoy's own runtime.MemStats benchmarking pattern (e.g.
// pkg/luau/benchmark_test.go, examples/go/speech/streaming_test/main.go).
type MemoryProbe func() float64

// NoopMemoryProbe always reports zero. Tests that don't care about memory
// stats inject this for deterministic Stats events.
func NoopMemoryProbe() float64 { return 0 }

// NewRuntimeMemoryProbe returns a MemoryProbe that samples runtime.MemStats
// on every call and tracks the high-water mark of HeapAlloc across the
// process's lifetime, converted to gigabytes.
func NewRuntimeMemoryProbe() MemoryProbe {
	var peakBytes atomic.Uint64
	return func() float64 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		for {
			cur := peakBytes.Load()
			if m.HeapAlloc <= cur {
				break
			}
			if peakBytes.CompareAndSwap(cur, m.HeapAlloc) {
				break
			}
		}
		return float64(peakBytes.Load()) / (1 << 30)
	}
}
