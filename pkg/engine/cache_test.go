package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spreadpilot/spreadpilot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for cache TTL tests.
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
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func resultAt(ts time.Time) types.EvaluationResult {
	return types.EvaluationResult{ComputedAt: ts}
}

func TestCache(t *testing.T) {
	t.Run("Hit Within TTL", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(5*time.Minute, clock.Now)

		computes := 0
		compute := func() (types.EvaluationResult, error) {
			computes++
			return resultAt(clock.Now()), nil
		}

		_, hit, err := c.Get("a", compute)
		require.NoError(t, err)
		assert.False(t, hit)

		clock.Advance(4 * time.Minute)
		_, hit, err = c.Get("a", compute)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, 1, computes)
	})

	t.Run("TTL Expiry Recomputes", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(5*time.Minute, clock.Now)

		computes := 0
		compute := func() (types.EvaluationResult, error) {
			computes++
			return resultAt(clock.Now()), nil
		}

		_, _, err := c.Get("a", compute)
		require.NoError(t, err)

		clock.Advance(5 * time.Minute)
		_, hit, err := c.Get("a", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 2, computes)
	})

	t.Run("Key Change Replaces Entry", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(time.Hour, clock.Now)

		computes := 0
		compute := func() (types.EvaluationResult, error) {
			computes++
			return resultAt(clock.Now()), nil
		}

		_, _, err := c.Get("a", compute)
		require.NoError(t, err)
		_, hit, err := c.Get("b", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 2, computes)

		// the old key's entry is gone, there is at most one live entry
		_, hit, err = c.Get("a", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 3, computes)
	})

	t.Run("Failed Compute Keeps Previous Entry", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(time.Hour, clock.Now)

		good := resultAt(testDay)
		_, _, err := c.Get("a", func() (types.EvaluationResult, error) {
			return good, nil
		})
		require.NoError(t, err)

		_, _, err = c.Get("b", func() (types.EvaluationResult, error) {
			return types.EvaluationResult{}, errors.New("boom")
		})
		require.Error(t, err)

		// the previous result is still retrievable as a fallback
		latest, ok := c.Latest()
		require.True(t, ok)
		assert.Equal(t, good, latest)
	})

	t.Run("Latest Respects TTL", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(5*time.Minute, clock.Now)

		_, _, err := c.Get("a", func() (types.EvaluationResult, error) {
			return resultAt(clock.Now()), nil
		})
		require.NoError(t, err)

		_, ok := c.Latest()
		assert.True(t, ok)

		clock.Advance(5 * time.Minute)
		_, ok = c.Latest()
		assert.False(t, ok)
	})

	t.Run("Invalidate", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(time.Hour, clock.Now)

		computes := 0
		compute := func() (types.EvaluationResult, error) {
			computes++
			return resultAt(clock.Now()), nil
		}

		_, _, err := c.Get("a", compute)
		require.NoError(t, err)
		c.Invalidate()

		_, hit, err := c.Get("a", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, 2, computes)
	})

	t.Run("Concurrent Cold Key Computes Once", func(t *testing.T) {
		clock := &fakeClock{t: testDay}
		c := NewCache(time.Hour, clock.Now)

		var computes atomic.Int32
		compute := func() (types.EvaluationResult, error) {
			computes.Add(1)
			time.Sleep(10 * time.Millisecond)
			return resultAt(clock.Now()), nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := c.Get("a", compute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), computes.Load())
	})
}
