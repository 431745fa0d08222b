package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestAllowExhaustsAndRefills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(3, time.Minute, clock.Now)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// Other keys have their own bucket.
	assert.True(t, l.Allow("b"))

	clock.Advance(20 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestRefillIsCapped(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(2, time.Minute, clock.Now)

	assert.True(t, l.Allow("a"))
	clock.Advance(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestSweepDropsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newLimiter(5, time.Minute, clock.Now)

	l.Allow("old")
	clock.Advance(90 * time.Second)
	l.Allow("recent")
	clock.Advance(60 * time.Second)
	l.sweep()

	assert.Equal(t, 1, l.Len())
}

func TestRetryAfterAndDefaults(t *testing.T) {
	l := newLimiter(0, 0, time.Now)
	assert.Equal(t, time.Minute, l.RetryAfter())

	l = newLimiter(60, time.Minute, time.Now)
	assert.Equal(t, time.Second, l.RetryAfter())
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(10, time.Minute)
	l.Close()
	l.Close()
}
