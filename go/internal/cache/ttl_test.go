package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[string, int](time.Minute, clock)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Len())

	clock.Advance(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTL_Invalidate(t *testing.T) {
	c := NewTTL[string, int](time.Minute, clockwork.NewFakeClock())
	c.Set("a", 1)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTL_GetOrLoadCachesSuccess(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewTTL[string, string](time.Minute, clock)
	var loads int

	load := func(context.Context) (string, error) {
		loads++
		return "season-1", nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad(context.Background(), "current", load)
		require.NoError(t, err)
		assert.Equal(t, "season-1", v)
	}
	assert.Equal(t, 1, loads)

	clock.Advance(time.Minute)
	_, err := c.GetOrLoad(context.Background(), "current", load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestTTL_GetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewTTL[string, int](time.Minute, clockwork.NewFakeClock())
	boom := errors.New("db down")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestTTL_GetOrLoadSharesInflightLoad(t *testing.T) {
	c := NewTTL[string, int](time.Minute, clockwork.NewFakeClock())
	var loads atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	load := func(context.Context) (int, error) {
		if loads.Add(1) == 1 {
			close(started)
		}
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.GetOrLoad(context.Background(), "k", load)
	}()
	<-started

	for i := 1; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrLoad(context.Background(), "k", load)
		}(i)
	}
	// let the waiters reach the inflight call before releasing
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestTTL_WaiterHonorsContext(t *testing.T) {
	c := NewTTL[string, int](time.Minute, clockwork.NewFakeClock())
	release := make(chan struct{})
	started := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
		t.Error("second load must not run")
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
