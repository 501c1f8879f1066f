package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-analytics/src/logger"
	"market-analytics/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(cfg models.MCacheConfig) (*ResponseCache, *fakeClock) {
	if cfg.TTLSeconds == 0 {
		cfg.TTLSeconds = 60
	}
	c := NewResponseCache(cfg, logger.NewSilentLogger())
	clock := &fakeClock{now: time.Date(2024, 6, 14, 12, 0, 0, 0, time.UTC)}
	c.SetClock(clock.Now)
	return c, clock
}

func counter(calls *atomic.Int32, value interface{}) func() (interface{}, error) {
	return func() (interface{}, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestHitReturnsIdenticalValue(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	var calls atomic.Int32
	payload := &models.MSummary{Dataset: "sp500"}

	first, err := c.GetOrCompute("summary?sp500", []string{"sp500"}, 0, counter(&calls, payload))
	require.NoError(t, err)
	second, err := c.GetOrCompute("summary?sp500", []string{"sp500"}, 0, counter(&calls, &models.MSummary{}))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestTTLExpiry(t *testing.T) {
	c, clock := newTestCache(models.MCacheConfig{TTLSeconds: 30})
	var calls atomic.Int32

	_, _ = c.GetOrCompute("k", []string{"dax"}, 0, counter(&calls, 1))
	clock.Advance(29 * time.Second)
	_, _ = c.GetOrCompute("k", []string{"dax"}, 0, counter(&calls, 2))
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(2 * time.Second)
	v, _ := c.GetOrCompute("k", []string{"dax"}, 0, counter(&calls, 3))
	assert.Equal(t, 3, v)
	assert.Equal(t, int32(2), calls.Load())

	clock.Advance(time.Hour)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestInvalidateDatasetOnlyDropsTaggedEntries(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	var calls atomic.Int32

	_, _ = c.GetOrCompute("a", []string{"sp500"}, 0, counter(&calls, 1))
	_, _ = c.GetOrCompute("b", []string{"dax"}, 0, counter(&calls, 2))
	_, _ = c.GetOrCompute("c", []string{"dax", "sp500"}, 0, counter(&calls, 3))

	assert.Equal(t, 2, c.InvalidateDataset("sp500"))
	assert.Equal(t, 1, c.Stats().Entries)

	_, _ = c.GetOrCompute("b", []string{"dax"}, 0, counter(&calls, 20))
	assert.Equal(t, int32(3), calls.Load())
}

func TestOnRefreshEventInvalidatesOnlyAfterFullHydrate(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	var calls atomic.Int32
	_, _ = c.GetOrCompute("a", []string{"sp500"}, 0, counter(&calls, 1))

	c.OnRefreshEvent(models.MRefreshEvent{Dataset: "sp500", Phase: models.PhasePartialHydrate, Status: models.StatusCompleted})
	c.OnRefreshEvent(models.MRefreshEvent{Dataset: "sp500", Phase: models.PhaseFullHydrate, Status: models.StatusFailed})
	assert.Equal(t, 1, c.Stats().Entries)

	c.OnRefreshEvent(models.MRefreshEvent{Dataset: "sp500", Phase: models.PhaseFullHydrate, Status: models.StatusCompleted})
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestComputeStartedBeforeInvalidationIsNotStored(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	var calls atomic.Int32

	v, err := c.GetOrCompute("a", []string{"sp500"}, 0, func() (interface{}, error) {
		calls.Add(1)
		c.InvalidateDataset("sp500")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	assert.Equal(t, 0, c.Stats().Entries)

	v, _ = c.GetOrCompute("a", []string{"sp500"}, 0, counter(&calls, "fresh"))
	assert.Equal(t, "fresh", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	boom := errors.New("boom")

	_, err := c.GetOrCompute("a", nil, 0, func() (interface{}, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestDisabledAndFullCacheStillCompute(t *testing.T) {
	disabled, _ := newTestCache(models.MCacheConfig{Disabled: true})
	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		v, err := disabled.GetOrCompute("a", nil, 0, counter(&calls, i))
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(3), calls.Load())

	full, _ := newTestCache(models.MCacheConfig{MaxEntries: 1})
	_, _ = full.GetOrCompute("a", nil, 0, counter(&calls, 1))
	v, err := full.GetOrCompute("b", nil, 0, counter(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, full.Stats().Entries)
}

func TestConcurrentMissesCollapse(t *testing.T) {
	c, _ := newTestCache(models.MCacheConfig{})
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrCompute("slow", []string{"sp500"}, 0, func() (interface{}, error) {
				calls.Add(1)
				<-release
				return "value", nil
			})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "value", r)
	}
	v, _ := c.GetOrCompute("slow", []string{"sp500"}, 0, counter(&calls, "other"))
	assert.Equal(t, "value", v)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rankings?dataset=sp500&period=1y&n=3", Key("rankings", "dataset=sp500", "period=1y", "n=3"))
}
