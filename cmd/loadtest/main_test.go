package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryRequest(t *testing.T) {
	cfg := Config{BaseURL: "http://example.test", TopK: 3}

	get, err := newQueryRequest(context.Background(), cfg, "flare efficiency", true)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, get.Method)
	assert.Equal(t, "/query", get.URL.Path)
	assert.Equal(t, "flare efficiency", get.URL.Query().Get("text"))
	assert.Equal(t, "3", get.URL.Query().Get("top_k"))

	post, err := newQueryRequest(context.Background(), cfg, "flare efficiency", false)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, post.Method)
	assert.Equal(t, "application/json", post.Header.Get("Content-Type"))
	body, err := io.ReadAll(post.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"flare efficiency","top_k":3}`, string(body))
}

func TestRunLoadTestAgainstServer(t *testing.T) {
	var gets, posts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets.Add(1)
		case http.MethodPost:
			posts.Add(1)
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	cfg := Config{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    200 * time.Millisecond,
		TopK:        5,
		GetEvery:    2,
		Queries:     defaultQueries,
	}
	stats := runLoadTest(context.Background(), cfg, NewStats(1000), io.Discard)

	assert.Positive(t, stats.totalRequests.Load())
	assert.Equal(t, stats.totalRequests.Load(), stats.successCount.Load())
	assert.Positive(t, gets.Load())
	assert.Positive(t, posts.Load())

	var report bytes.Buffer
	printReport(&report, stats, cfg.Duration)
	assert.Contains(t, report.String(), "=== Latency (ms) ===")
	assert.Contains(t, report.String(), "  200: ")
}
