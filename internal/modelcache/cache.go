// Package modelcache keeps trained per-station models in memory backed by
// on-disk artifacts, recomputing them once they expire.
package modelcache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Tier reports where a value was served from.
type Tier string

const (
	TierMemory   Tier = "memory"
	TierDisk     Tier = "disk"
	TierComputed Tier = "computed"
)

// ErrMiss is returned by a Persister that holds no artifact for a key.
var ErrMiss = errors.New("modelcache: miss")

// Persister stores artifacts outside the process.
type Persister[T any] interface {
	Load(key int) (T, time.Time, error)
	Save(key int, value T, trainedAt time.Time) error
	Remove(key int) error
	RemoveAll() error
}

type entry[T any] struct {
	value     T
	trainedAt time.Time
}

// Cache is safe for concurrent use. Concurrent misses for the same key share
// a single computation.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[int]entry[T]
	disk    Persister[T]
	group   singleflight.Group
	now     func() time.Time
	onSave  func(key int, err error)
}

type Option[T any] func(*Cache[T])

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// WithSaveErrorHandler is called when persisting a computed value fails.
func WithSaveErrorHandler[T any](fn func(key int, err error)) Option[T] {
	return func(c *Cache[T]) { c.onSave = fn }
}

// New builds a cache. disk may be nil for a memory-only cache.
func New[T any](disk Persister[T], opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		entries: make(map[int]entry[T]),
		disk:    disk,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[T]) fresh(trainedAt time.Time, ttl time.Duration) bool {
	return c.now().Sub(trainedAt) < ttl
}

func (c *Cache[T]) memory(key int, ttl time.Duration) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(e.trainedAt, ttl) {
		return e.value, true
	}
	var zero T
	return zero, false
}

// GetOrCompute returns the value for key if it was produced less than ttl
// ago, looking in memory first and then on disk. Otherwise compute runs and
// its result is stored in both tiers. Expired entries are replaced, not
// evicted on read.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key int, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, Tier, error) {
	if v, ok := c.memory(key, ttl); ok {
		return v, TierMemory, nil
	}

	type result struct {
		value T
		tier  Tier
	}
	res, err, _ := c.group.Do(strconv.Itoa(key), func() (interface{}, error) {
		// Another caller may have filled memory while we waited.
		if v, ok := c.memory(key, ttl); ok {
			return result{v, TierMemory}, nil
		}

		if c.disk != nil {
			v, trainedAt, err := c.disk.Load(key)
			if err == nil && c.fresh(trainedAt, ttl) {
				c.put(key, v, trainedAt)
				return result{v, TierDisk}, nil
			}
		}

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		trainedAt := c.now()
		c.put(key, v, trainedAt)
		if c.disk != nil {
			if err := c.disk.Save(key, v, trainedAt); err != nil && c.onSave != nil {
				c.onSave(key, err)
			}
		}
		return result{v, TierComputed}, nil
	})
	if err != nil {
		var zero T
		return zero, "", err
	}
	r := res.(result)
	return r.value, r.tier, nil
}

func (c *Cache[T]) put(key int, v T, trainedAt time.Time) {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: v, trainedAt: trainedAt}
	c.mu.Unlock()
}

// TrainedAt reports when the in-memory value for key was produced.
func (c *Cache[T]) TrainedAt(key int) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.trainedAt, ok
}

// Clear drops key from both tiers.
func (c *Cache[T]) Clear(key int) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.group.Forget(strconv.Itoa(key))

	if c.disk == nil {
		return nil
	}
	return c.disk.Remove(key)
}

// ClearAll empties both tiers.
func (c *Cache[T]) ClearAll() error {
	c.mu.Lock()
	c.entries = make(map[int]entry[T])
	c.mu.Unlock()

	if c.disk == nil {
		return nil
	}
	return c.disk.RemoveAll()
}
