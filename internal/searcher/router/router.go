// Package router wires the query server's routes and applies the middleware
// chain (RequestID → Observe → Recover → CORS).
package router

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/middleware"
)

// Routes registered by New, used as the bounded set of metric labels.
var Routes = []string{
	"/healthz",
	"/api/healthz",
	"/query",
	"/api/query",
	"/readyz",
	"/metrics",
	"/api/stats",
}

type Deps struct {
	Handler *handler.Handler
	// Ready, Stats and Metrics are optional; a nil entry leaves the route to
	// the not-found handler.
	Ready    http.HandlerFunc
	Stats    http.HandlerFunc
	Metrics  *metrics.Metrics
	Observer middleware.Observer
	// Limiter throttles the query routes per client address; nil disables it.
	Limiter middleware.Limiter
	// ServeMetrics exposes /metrics on this listener.
	ServeMetrics bool
	CORSOrigins  []string
}

// New builds the query server handler.
//
// Route table (paths only; each handler checks its own methods so that an
// unsupported method gets the 404 envelope rather than a 405):
//
//	/healthz, /api/healthz   GET      status, documents, latency (?badge → SVG)
//	/query, /api/query       GET      ?text|query, ?top_k|topK
//	                         POST     {"query", "top_k"|"topK"}
//	                         OPTIONS  204, Allow: GET, POST, OPTIONS
//	/readyz                  GET      dependency report
//	/metrics                 GET      Prometheus
//	/api/stats               GET      latency window snapshot
//	everything else          404 {"error":"NotFound"}
func New(d Deps) http.Handler {
	h := d.Handler
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/api/healthz", h.Health)
	mux.HandleFunc("/query", h.Query)
	mux.HandleFunc("/api/query", h.Query)

	if d.Ready != nil {
		mux.HandleFunc("/readyz", getOnly(h, d.Ready))
	}
	if d.Stats != nil {
		mux.HandleFunc("/api/stats", getOnly(h, d.Stats))
	}
	if d.ServeMetrics && d.Metrics != nil {
		mux.HandleFunc("/metrics", getOnly(h, d.Metrics.Handler().ServeHTTP))
	}
	mux.HandleFunc("/", h.NotFound)

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:     origins,
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:     []string{middleware.RequestIDHeader},
		MaxAge:             86400,
		OptionsPassthrough: true,
	})

	// Applied inside-out: request → RequestID → Observe → RateLimit → Recover → CORS → mux
	var chain http.Handler = mux
	chain = c.Handler(chain)
	chain = middleware.Recover(chain)
	chain = middleware.RateLimit(d.Limiter, []string{"/query", "/api/query"})(chain)
	chain = middleware.Observe(d.Observer, d.Metrics, Routes)(chain)
	chain = middleware.RequestID(chain)
	return chain
}

func getOnly(h *handler.Handler, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			h.NotFound(w, r)
			return
		}
		next(w, r)
	}
}
