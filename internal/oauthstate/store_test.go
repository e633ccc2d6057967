package oauthstate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestPutPop_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Minute, 10, WithClock(clock.Now))

	require.NoError(t, s.Put("rt-1", "rs-1", "user-1"))

	p, err := s.Pop("rt-1")
	require.NoError(t, err)
	assert.Equal(t, "rt-1", p.RequestToken)
	assert.Equal(t, "rs-1", p.RequestSecret)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, clock.Now(), p.CreatedAt)
}

func TestPop_AtMostOnce(t *testing.T) {
	s := New(time.Minute, 10)
	require.NoError(t, s.Put("rt-1", "rs-1", "user-1"))

	_, err := s.Pop("rt-1")
	require.NoError(t, err)

	_, err = s.Pop("rt-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPop_Unknown(t *testing.T) {
	s := New(time.Minute, 10)
	_, err := s.Pop("never-issued")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPop_Expired(t *testing.T) {
	clock := newFakeClock()
	s := New(15*time.Minute, 10, WithClock(clock.Now))
	require.NoError(t, s.Put("rt-1", "rs-1", "user-1"))

	clock.Advance(15 * time.Minute)

	_, err := s.Pop("rt-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestPop_JustBeforeExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New(15*time.Minute, 10, WithClock(clock.Now))
	require.NoError(t, s.Put("rt-1", "rs-1", "user-1"))

	clock.Advance(15*time.Minute - time.Second)

	_, err := s.Pop("rt-1")
	assert.NoError(t, err)
}

func TestPut_EvictsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, 3, WithClock(clock.Now))

	for i := 1; i <= 4; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("rt-%d", i), "rs", "user"))
		clock.Advance(time.Second)
	}

	assert.Equal(t, 3, s.Len())
	_, err := s.Pop("rt-1")
	assert.ErrorIs(t, err, ErrNotFound, "oldest entry should have been evicted")
	for _, key := range []string{"rt-2", "rt-3", "rt-4"} {
		_, err := s.Pop(key)
		assert.NoError(t, err, key)
	}
}

func TestPut_ReplacesSameToken(t *testing.T) {
	s := New(time.Hour, 10)
	require.NoError(t, s.Put("rt-1", "old", "user-1"))
	require.NoError(t, s.Put("rt-1", "new", "user-2"))

	assert.Equal(t, 1, s.Len())
	p, err := s.Pop("rt-1")
	require.NoError(t, err)
	assert.Equal(t, "new", p.RequestSecret)
	assert.Equal(t, "user-2", p.UserID)
}

func TestPut_RejectsEmptyToken(t *testing.T) {
	s := New(time.Hour, 10)
	assert.Error(t, s.Put("  ", "rs", "user"))
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	s := New(10*time.Minute, 10, WithClock(clock.Now))

	require.NoError(t, s.Put("old", "rs", "u"))
	clock.Advance(6 * time.Minute)
	require.NoError(t, s.Put("young", "rs", "u"))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())
	_, err := s.Pop("young")
	assert.NoError(t, err)
}

func TestDefaults(t *testing.T) {
	s := New(0, 0)
	assert.Equal(t, DefaultTTL, s.ttl)
	assert.Equal(t, DefaultMaxEntries, s.maxEntries)
}

func TestConcurrentPopYieldsSingleWinner(t *testing.T) {
	s := New(time.Hour, 10)
	require.NoError(t, s.Put("rt-1", "rs", "user"))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Pop("rt-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}
