// Package analytics records request latencies into a bounded rolling window
// used for health reporting, and fans each observation out to optional sinks
// (a JSON-lines file, Kafka).
package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
)

// Recorder is safe for concurrent use.
type Recorder struct {
	window     *Window
	sinks      []Sink
	metrics    *metrics.Metrics
	logger     *slog.Logger
	startTime  time.Time
	requests   atomic.Int64
	errors     atomic.Int64
	sinkErrors atomic.Int64
}

type RecorderOption func(*Recorder)

func WithSink(s Sink) RecorderOption {
	return func(r *Recorder) {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
}

func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

func NewRecorder(windowSize int, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		window:    NewWindow(windowSize),
		logger:    logger.WithComponent("latency-recorder"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe adds ev to the window and forwards it to every sink. It never
// fails: sink errors are logged at warn and counted.
func (r *Recorder) Observe(ctx context.Context, ev Event) {
	r.window.Add(ev.Duration)
	r.requests.Add(1)
	if ev.Status >= 500 {
		r.errors.Add(1)
	}
	if r.metrics != nil {
		r.metrics.LatencyP95.Set(Milliseconds(r.window.P95()))
	}
	for _, s := range r.sinks {
		if err := s.Write(ctx, ev); err != nil {
			r.sinkErrors.Add(1)
			if r.metrics != nil {
				r.metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			}
			r.logger.WarnContext(ctx, "metrics sink write failed", "sink", s.Name(), "error", err)
		}
	}
}

// ObserveRequest adapts Observe to the HTTP middleware.
func (r *Recorder) ObserveRequest(ctx context.Context, method, path string, status int, d time.Duration) {
	r.Observe(ctx, Event{
		RequestID: logger.RequestID(ctx),
		Method:    method,
		Path:      path,
		Status:    status,
		Duration:  d,
		Timestamp: time.Now().UTC(),
	})
}

// P95 is the current window's 95th percentile latency.
func (r *Recorder) P95() time.Duration {
	return r.window.P95()
}

func (r *Recorder) Samples() int {
	return r.window.Len()
}

// Snapshot is the point-in-time view served by /api/stats and persisted by
// the aggregator.
type Snapshot struct {
	Requests          int64       `json:"requests"`
	ServerErrors      int64       `json:"server_errors"`
	SinkErrors        int64       `json:"sink_errors"`
	RequestsPerMinute float64     `json:"requests_per_minute"`
	Window            WindowStats `json:"window"`
	StartedAt         time.Time   `json:"started_at"`
	CapturedAt        time.Time   `json:"captured_at"`
}

func (r *Recorder) Snapshot() Snapshot {
	now := time.Now()
	snap := Snapshot{
		Requests:     r.requests.Load(),
		ServerErrors: r.errors.Load(),
		SinkErrors:   r.sinkErrors.Load(),
		Window:       r.window.Stats(),
		StartedAt:    r.startTime.UTC(),
		CapturedAt:   now.UTC(),
	}
	if elapsed := now.Sub(r.startTime).Minutes(); elapsed > 0 {
		snap.RequestsPerMinute = float64(snap.Requests) / elapsed
	}
	return snap
}

// Close closes every sink, returning the first error.
func (r *Recorder) Close() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
