package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
)

type observed struct {
	method, path string
	status       int
	requestID    string
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *recordingObserver) ObserveRequest(ctx context.Context, method, path string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observed{method, path, status, logger.RequestID(ctx)})
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	var inner string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 24)
	assert.Equal(t, id, inner)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-abc", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "client-abc", inner)
}

func TestRecoverReturnsGeneric500(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("secret detail")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"InternalError","message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestRecoverRethrowsAbort(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestObserveRecordsEveryOutcome(t *testing.T) {
	obs := &recordingObserver{}
	m := metrics.New(prometheus.NewRegistry())
	chain := RequestID(Observe(obs, m, []string{"/query"})(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/query":
			w.WriteHeader(http.StatusBadRequest)
		default:
			panic("boom")
		}
	}))))

	for _, path := range []string{"/query", "/nope/123"} {
		chain.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observed{"POST", "/query", 400, obs.seen[0].requestID}, obs.seen[0])
	assert.NotEmpty(t, obs.seen[0].requestID)
	assert.Equal(t, "other", obs.seen[1].path, "unknown paths collapse to one label")
	assert.Equal(t, 500, obs.seen[1].status)
}

func TestStatusWriterDefaultsTo200(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, err := sw.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, sw.status)
	assert.Equal(t, 2, sw.bytes)
	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, sw.status, "status is fixed once the body started")
}

type countingLimiter struct {
	budget map[string]int
}

func (l *countingLimiter) Allow(key string) bool {
	if l.budget[key] <= 0 {
		return false
	}
	l.budget[key]--
	return true
}

func (l *countingLimiter) RetryAfter() time.Duration { return 1500 * time.Millisecond }

func TestRateLimitRejectsOverBudget(t *testing.T) {
	lim := &countingLimiter{budget: map[string]int{"192.0.2.1": 1}}
	h := RateLimit(lim, []string{"/query"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "192.0.2.1:4321"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/query").Code)

	rec := do(http.MethodGet, "/query")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"RateLimited","message":"rate limit exceeded"}`, rec.Body.String())

	// Unlimited paths and preflights are never counted.
	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodOptions, "/query").Code)
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	RateLimit(nil, []string{"/query"})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/query", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
