package cache

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/resilience"
)

type fakeRemote struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
	gets int
	sets int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{data: make(map[string][]byte)}
}

func (f *fakeRemote) Lookup(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.down {
		return nil, false, errors.New("connection refused")
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.down {
		return errors.New("connection refused")
	}
	f.data[key] = value
	return nil
}

func sample() []executor.Result {
	return []executor.Result{{DocID: "AM0001@v1:A", Score: 0.287682, Tags: []string{}}}
}

func TestLocalHit(t *testing.T) {
	c := New(Options{Size: 8, Fingerprint: "fp"})
	calls := 0
	compute := func() ([]executor.Result, error) {
		calls++
		return sample(), nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), []string{"monitoring"}, 5, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample(), got)

	got, hit, err = c.GetOrCompute(context.Background(), []string{"monitoring"}, 5, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample(), got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeyIgnoresTermOrderButNotTopK(t *testing.T) {
	c := New(Options{Fingerprint: "fp"})
	assert.Equal(t, c.buildKey([]string{"plan", "monitoring"}, 5), c.buildKey([]string{"monitoring", "plan"}, 5))
	assert.NotEqual(t, c.buildKey([]string{"plan"}, 5), c.buildKey([]string{"plan"}, 6))

	other := New(Options{Fingerprint: "other"})
	assert.NotEqual(t, c.buildKey([]string{"plan"}, 5), other.buildKey([]string{"plan"}, 5))
}

func TestComputeErrorNotCached(t *testing.T) {
	c := New(Options{})
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), []string{"x"}, 5, func() ([]executor.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestRemoteTierSharedAcrossInstances(t *testing.T) {
	remote := newFakeRemote()
	first := New(Options{Fingerprint: "fp", Remote: remote, RemoteTTL: time.Minute})
	_, _, err := first.GetOrCompute(context.Background(), []string{"baseline"}, 5, func() ([]executor.Result, error) {
		return sample(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, remote.sets)

	second := New(Options{Fingerprint: "fp", Remote: remote})
	got, hit, err := second.GetOrCompute(context.Background(), []string{"baseline"}, 5, func() ([]executor.Result, error) {
		t.Fatal("compute must not run on a remote hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample(), got)
}

func TestRemoteFailureFallsBackAndTripsBreaker(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	m := metrics.New(prometheus.NewRegistry())
	c := New(Options{
		Remote:  remote,
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
		Metrics: m,
	})

	for i, term := range []string{"a", "b", "c"} {
		got, hit, err := c.GetOrCompute(context.Background(), []string{term}, 5, func() ([]executor.Result, error) {
			return sample(), nil
		})
		require.NoError(t, err, "query %d", i)
		assert.False(t, hit)
		assert.Equal(t, sample(), got)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `methodology_search_circuit_breaker_state{name="redis-cache"} 1`)
	// The first query's get and set both fail, which trips the breaker.
	assert.Equal(t, 1, remote.gets, "open breaker stops calling the remote")
	assert.Equal(t, 1, remote.sets)
}

func TestSingleflightCollapsesConcurrentMisses(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), []string{"same"}, 5, func() ([]executor.Result, error) {
				calls.Add(1)
				<-release
				return sample(), nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Len())
}
