package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
)

type fixedLatency struct{}

func (fixedLatency) P95() time.Duration { return 2500 * time.Microsecond }
func (fixedLatency) Samples() int       { return 7 }

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, string, int) (*executor.Response, error) {
	return nil, errors.New("index exploded at 0xdeadbeef")
}
func (failingSearcher) DocCount() int { return 0 }

func newTestHandler(t *testing.T, opts Options) *Handler {
	t.Helper()
	return New(executor.New(corpustest.LoadTwoDocs(t)), fixedLatency{}, opts)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func do(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, Options{})
	rec := do(h.Health, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","documents":2,"latency":{"p95_ms":2.5,"samples":7}}`, rec.Body.String())
}

func TestHealthBadge(t *testing.T) {
	h := newTestHandler(t, Options{})
	for _, target := range []string{"/healthz?badge", "/healthz?badge=1"} {
		rec := do(h.Health, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "<svg"))
		assert.Contains(t, rec.Body.String(), "2 docs")
	}
}

func TestHealthRejectsOtherMethods(t *testing.T) {
	h := newTestHandler(t, Options{})
	rec := do(h.Health, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decode[errorResponse](t, rec).Error)
}

func TestQueryGET(t *testing.T) {
	h := newTestHandler(t, Options{})
	rec := do(h.Query, httptest.NewRequest(http.MethodGet, "/query?text=monitoring&topK=3", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[executor.Response](t, rec)
	assert.Equal(t, "monitoring", resp.Query)
	assert.Equal(t, 3, resp.TopK)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "AM0001@v1:A", resp.Results[0].DocID)
	assert.Equal(t, 0.693147, resp.Results[0].Score)
	assert.Equal(t, "lowercase-ascii-alnum-split/v1", resp.Audit.BM25.Tokenizer)
}

func TestQueryWireShape(t *testing.T) {
	h := newTestHandler(t, Options{})
	rec := do(h.Query, httptest.NewRequest(http.MethodGet, "/query?text=monitoring", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	results := body["results"].([]any)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.ElementsMatch(t,
		[]string{"doc_id", "methodology_id", "version", "rule_id", "section_id", "section_title", "score", "text", "tags"},
		keys(hit))

	bm25 := body["audit"].(map[string]any)["bm25"].(map[string]any)
	assert.Equal(t, float64(2), bm25["documents"])
	params := bm25["params"].(map[string]any)
	assert.Equal(t, 1.2, params["k1"])
	assert.Equal(t, 0.75, params["b"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestQueryGETValidation(t *testing.T) {
	h := newTestHandler(t, Options{})

	rec := do(h.Query, httptest.NewRequest(http.MethodGet, "/query?top_k=3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BadRequest", decode[errorResponse](t, rec).Error)

	rec = do(h.Query, httptest.NewRequest(http.MethodGet, "/query?text=", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[executor.Response](t, rec)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 2, resp.Audit.BM25.Documents)
}

func TestQueryPOST(t *testing.T) {
	h := newTestHandler(t, Options{})
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind string
		wantTopK int
	}{
		{"string top_k", `{"query":"monitoring baseline","top_k":"1"}`, 200, "", 1},
		{"camel top_k", `{"query":"monitoring","topK":2}`, 200, "", 2},
		{"clamped", `{"query":"monitoring","top_k":500}`, 200, "", 50},
		{"garbage top_k", `{"query":"monitoring","top_k":"lots"}`, 200, "", 5},
		{"blank query", `{"query":"  "}`, 200, "", 5},
		{"missing query", `{"top_k":1}`, 400, "BadRequest", 0},
		{"malformed", `{"query":`, 400, "InvalidJSON", 0},
		{"empty body", ``, 400, "InvalidJSON", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := do(h.Query, req)
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if tc.wantKind != "" {
				assert.Equal(t, tc.wantKind, decode[errorResponse](t, rec).Error)
				return
			}
			resp := decode[executor.Response](t, rec)
			assert.Equal(t, tc.wantTopK, resp.TopK)
			assert.LessOrEqual(t, len(resp.Results), resp.TopK)
		})
	}
}

func TestQueryPOSTTooLarge(t *testing.T) {
	h := newTestHandler(t, Options{MaxBodyBytes: 32})
	body := `{"query":"` + strings.Repeat("monitoring ", 10) + `"}`

	declared := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	rec := do(h.Query, declared)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
	assert.Equal(t, "PayloadTooLarge", decode[errorResponse](t, rec).Error)

	streamed := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body))
	streamed.ContentLength = -1
	rec = do(h.Query, streamed)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "close", rec.Header().Get("Connection"))
}

func TestQueryOptions(t *testing.T) {
	h := newTestHandler(t, Options{})
	rec := do(h.Query, httptest.NewRequest(http.MethodOptions, "/query", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, AllowedMethods, rec.Header().Get("Allow"))
	assert.Empty(t, rec.Body.String())
}

func TestQueryUnsupportedMethod(t *testing.T) {
	h := newTestHandler(t, Options{})
	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec := do(h.Query, httptest.NewRequest(method, "/query", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}
}

func TestQueryInternalErrorIsGeneric(t *testing.T) {
	h := New(failingSearcher{}, nil, Options{Tracing: true})
	rec := do(h.Query, httptest.NewRequest(http.MethodGet, "/query?text=x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "InternalError", resp.Error)
	assert.NotContains(t, rec.Body.String(), "deadbeef")
}

func TestHealthWithoutLatencySource(t *testing.T) {
	h := New(failingSearcher{}, nil, Options{})
	rec := do(h.Health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"ok","documents":0,"latency":{"p95_ms":0,"samples":0}}`, rec.Body.String())
}
