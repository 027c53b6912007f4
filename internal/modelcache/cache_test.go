package modelcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

type model struct {
	Version int `json:"version"`
}

func counter() (func(context.Context) (model, error), *atomic.Int32) {
	var n atomic.Int32
	return func(context.Context) (model, error) {
		return model{Version: int(n.Add(1))}, nil
	}, &n
}

func TestExpiryBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New[model](nil, WithClock[model](clock.Now))
	compute, calls := counter()
	ctx := context.Background()

	v, tier, err := c.GetOrCompute(ctx, 1, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierComputed, tier)
	assert.Equal(t, 1, v.Version)

	clock.Advance(23 * time.Hour)
	v, tier, err = c.GetOrCompute(ctx, 1, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, tier)
	assert.Equal(t, 1, v.Version)

	clock.Advance(2 * time.Hour)
	v, tier, err = c.GetOrCompute(ctx, 1, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierComputed, tier)
	assert.Equal(t, 2, v.Version)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDiskTierSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	disk, err := NewJSONPersister[model](dir)
	require.NoError(t, err)

	first := New[model](disk, WithClock[model](clock.Now))
	compute, calls := counter()
	_, _, err = first.GetOrCompute(context.Background(), 7, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "station_7_model.json"))
	assert.FileExists(t, filepath.Join(dir, "station_7_meta.json"))

	clock.Advance(time.Hour)
	second := New[model](disk, WithClock[model](clock.Now))
	v, tier, err := second.GetOrCompute(context.Background(), 7, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierDisk, tier)
	assert.Equal(t, 1, v.Version)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(24 * time.Hour)
	third := New[model](disk, WithClock[model](clock.Now))
	_, tier, err = third.GetOrCompute(context.Background(), 7, 24*time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierComputed, tier)
}

func TestConcurrentMissesShareComputation(t *testing.T) {
	c := New[model](nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (model, error) {
		calls.Add(1)
		<-release
		return model{Version: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute(context.Background(), 3, time.Hour, compute)
			assert.NoError(t, err)
			assert.Equal(t, 1, v.Version)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

func TestComputeErrorIsNotCached(t *testing.T) {
	c := New[model](nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), 1, time.Hour, func(context.Context) (model, error) {
		return model{}, boom
	})
	assert.ErrorIs(t, err, boom)

	v, tier, err := c.GetOrCompute(context.Background(), 1, time.Hour, func(context.Context) (model, error) {
		return model{Version: 9}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, TierComputed, tier)
	assert.Equal(t, 9, v.Version)
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewJSONPersister[model](dir)
	require.NoError(t, err)
	c := New[model](disk)
	compute, calls := counter()
	ctx := context.Background()

	for _, key := range []int{1, 2, 3} {
		_, _, err := c.GetOrCompute(ctx, key, time.Hour, compute)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	require.NoError(t, c.Clear(1))
	assert.NoFileExists(t, filepath.Join(dir, "station_1_model.json"))
	_, ok := c.TrainedAt(1)
	assert.False(t, ok)
	_, tier, err := c.GetOrCompute(ctx, 2, time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierMemory, tier)

	require.NoError(t, c.ClearAll())
	matches, err := filepath.Glob(filepath.Join(dir, "station_*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.FileExists(t, filepath.Join(dir, "unrelated.txt"))

	_, tier, err = c.GetOrCompute(ctx, 2, time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, TierComputed, tier)
	assert.EqualValues(t, 4, calls.Load())

	require.NoError(t, c.Clear(42), "clearing an unknown key is not an error")
}
