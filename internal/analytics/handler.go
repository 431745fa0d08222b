package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
)

// CacheStats reports result-cache hit and miss totals.
type CacheStats func() (hits, misses int64)

type Handler struct {
	recorder *Recorder
	cache    CacheStats
	logger   *slog.Logger
}

type HandlerOption func(*Handler)

// WithCacheStats adds a "cache" section to the stats response.
func WithCacheStats(fn CacheStats) HandlerOption {
	return func(h *Handler) { h.cache = fn }
}

func NewHandler(recorder *Recorder, opts ...HandlerOption) *Handler {
	h := &Handler{
		recorder: recorder,
		logger:   logger.WithComponent("analytics-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type statsResponse struct {
	Snapshot
	Cache *cacheReport `json:"cache,omitempty"`
}

type cacheReport struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats serves the recorder snapshot, plus cache totals when configured.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Snapshot: h.recorder.Snapshot()}
	if h.cache != nil {
		hits, misses := h.cache()
		resp.Cache = &cacheReport{Hits: hits, Misses: misses}
		if total := hits + misses; total > 0 {
			resp.Cache.HitRate = float64(hits) / float64(total)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
