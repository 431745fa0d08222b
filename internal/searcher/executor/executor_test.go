package executor_test

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/corpus/corpustest"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
)

func TestSearchRanksMatchingDocument(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))

	resp, err := e.Search(context.Background(), "monitoring", 0)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1, "B has no matching term and must be absent")
	got := resp.Results[0]
	assert.Equal(t, "AM0001@v1:A", got.DocID)
	assert.Equal(t, "AM0001", got.MethodologyID)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, "A", got.RuleID)
	assert.Equal(t, []string{"monitoring"}, got.Tags)
	// N=2, df=1, f=1, L=avgdl=5: idf=ln 2 and the tf factor is exactly 1.
	assert.Equal(t, executor.RoundScore(math.Ln2), got.Score)
	assert.Equal(t, 0.693147, got.Score)

	assert.Equal(t, "monitoring", resp.Query)
	assert.Equal(t, 5, resp.TopK)
	assert.Equal(t, 2, resp.Audit.BM25.Documents)
}

func TestSearchBlankQuery(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))
	for _, text := range []string{"", "   ", "\t\n"} {
		resp, err := e.Search(context.Background(), text, 3)
		require.NoError(t, err)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Equal(t, 3, resp.TopK)
		assert.Equal(t, corpus.BM25K1, resp.Audit.BM25.Params.K1)
		assert.Equal(t, 2, resp.Audit.BM25.Documents)
	}
}

func TestSearchTopKResolution(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))
	tests := []struct {
		in, want int
	}{
		{0, 5},
		{-1, 5},
		{1, 1},
		{1000, 50},
	}
	for _, tc := range tests {
		resp, err := e.Search(context.Background(), "monitoring baseline", tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, resp.TopK, "topK=%d", tc.in)
		assert.LessOrEqual(t, len(resp.Results), tc.want)
	}
}

func TestSearchTruncatesToTopK(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))
	resp, err := e.Search(context.Background(), "monitoring baseline", 1)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	// Equal scores: the smaller key wins.
	assert.Equal(t, "AM0001@v1:A", resp.Results[0].DocID)
}

func TestSearchNoMatch(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))
	resp, err := e.Search(context.Background(), "additionality", 5)
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
}

func TestSearchDeterministic(t *testing.T) {
	e := executor.New(corpustest.LoadTwoDocs(t))
	first, err := e.Search(context.Background(), "plan baseline change", 5)
	require.NoError(t, err)
	a, err := json.Marshal(first)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.Search(context.Background(), "plan baseline change", 5)
			if !assert.NoError(t, err) {
				return
			}
			b, err := json.Marshal(resp)
			assert.NoError(t, err)
			assert.JSONEq(t, string(a), string(b))
		}()
	}
	wg.Wait()
}

func TestSearchWithCacheAndMetrics(t *testing.T) {
	c := corpustest.LoadTwoDocs(t)
	m := metrics.New(prometheus.NewRegistry())
	qc := cache.New(cache.Options{Size: 16, Fingerprint: executor.Fingerprint(c), Metrics: m})
	e := executor.New(c, executor.WithCache(qc), executor.WithMetrics(m))

	first, err := e.Search(context.Background(), "Monitoring plan", 5)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "plan monitoring monitoring", 5)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, "plan monitoring monitoring", second.Query, "query echo is per request, not cached")
	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestFingerprintTracksSources(t *testing.T) {
	c := corpustest.LoadTwoDocs(t)
	fp := executor.Fingerprint(c)
	assert.Len(t, fp, 16)

	changed := *c
	changed.Audit.Sources = append([]corpus.SourceProvenance(nil), c.Audit.Sources...)
	changed.Audit.Sources[0].RulesSHA256 = "deadbeef"
	assert.NotEqual(t, fp, executor.Fingerprint(&changed))
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 1.234568, executor.RoundScore(1.2345678))
	assert.Equal(t, 0.0, executor.RoundScore(0.0000004))
}
