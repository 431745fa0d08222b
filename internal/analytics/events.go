package analytics

import (
	"encoding/json"
	"time"
)

// Event describes one served request. It is what sinks receive.
type Event struct {
	RequestID string        `json:"request_id,omitempty"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	Status    int           `json:"status"`
	Duration  time.Duration `json:"-"`
	Timestamp time.Time     `json:"ts"`
}

// MarshalJSON reports the duration in fractional milliseconds, which is what
// the latency log consumers expect.
func (e Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		alias
		DurationMs float64 `json:"duration_ms"`
	}{
		alias:      alias(e),
		DurationMs: Milliseconds(e.Duration),
	})
}

// Milliseconds converts d to fractional milliseconds rounded to 3 places.
func Milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
