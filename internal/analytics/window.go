package analytics

import (
	"math"
	"slices"
	"sync"
	"time"
)

const DefaultWindowSize = 200

// Window is a fixed-capacity ring of request durations; once full, each new
// sample evicts the oldest.
type Window struct {
	mu       sync.Mutex
	samples  []time.Duration
	head     int
	size     int
	capacity int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		samples:  make([]time.Duration, capacity),
		capacity: capacity,
	}
}

func (w *Window) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.head] = d
	w.head = (w.head + 1) % w.capacity
	if w.size < w.capacity {
		w.size++
	}
}

// Len is the number of samples currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) Capacity() int {
	return w.capacity
}

// P95 returns the nearest-rank 95th percentile, or 0 when empty.
func (w *Window) P95() time.Duration {
	return percentile(w.sorted(), 95)
}

// WindowStats summarises the current window contents in milliseconds.
type WindowStats struct {
	Samples  int     `json:"samples"`
	Capacity int     `json:"capacity"`
	MeanMs   float64 `json:"mean_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
	MaxMs    float64 `json:"max_ms"`
}

func (w *Window) Stats() WindowStats {
	sorted := w.sorted()
	stats := WindowStats{Samples: len(sorted), Capacity: w.capacity}
	if len(sorted) == 0 {
		return stats
	}
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	stats.MeanMs = Milliseconds(sum / time.Duration(len(sorted)))
	stats.P50Ms = Milliseconds(percentile(sorted, 50))
	stats.P95Ms = Milliseconds(percentile(sorted, 95))
	stats.P99Ms = Milliseconds(percentile(sorted, 99))
	stats.MaxMs = Milliseconds(sorted[len(sorted)-1])
	return stats
}

func (w *Window) sorted() []time.Duration {
	w.mu.Lock()
	out := make([]time.Duration, w.size)
	copy(out, w.samples[:w.size])
	w.mu.Unlock()
	slices.Sort(out)
	return out
}

// percentile uses the nearest-rank method: the smallest sample such that at
// least pct percent of samples are <= it.
func percentile(sorted []time.Duration, pct int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(float64(pct) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
