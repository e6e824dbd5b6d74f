package streamable

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultFailureTTL  = 5 * time.Minute
	defaultFailureSize = 256
)

// CacheOptions configures a Cache.
type CacheOptions struct {
	// Name labels the metrics of the cache.
	Name string
	// IdleTTL is how long an unreferenced entry stays valid. Zero keeps entries until Unload removes them explicitly.
	IdleTTL time.Duration
	// FailureTTL is how long an irrecoverable failure is remembered.
	FailureTTL time.Duration
	// FailureSize bounds the number of remembered failures.
	FailureSize int
}

type cacheEntry[T any] struct {
	value    T
	refs     int
	lastUsed time.Time
}

type failureRecord struct {
	err     error
	expires time.Time
}

// Cache stores completed loads by key together with the number of consumers
// holding each of them.
type Cache[T any] struct {
	CacheOptions
	mu       sync.Mutex
	entries  map[string]*cacheEntry[T]
	failures *expirable.LRU[string, failureRecord]
}

// NewCache creates a new cache.
func NewCache[T any](opts CacheOptions) *Cache[T] {
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = defaultFailureTTL
	}
	if opts.FailureSize <= 0 {
		opts.FailureSize = defaultFailureSize
	}
	return &Cache[T]{
		CacheOptions: opts,
		entries:      make(map[string]*cacheEntry[T]),
		// a TTL on the LRU starts a cleanup goroutine that never exits, one per
		// cache; expiry is checked on read instead.
		failures: expirable.NewLRU[string, failureRecord](opts.FailureSize, nil, 0),
	}
}

func (c *Cache[T]) expired(e *cacheEntry[T], now time.Time) bool {
	return e.refs == 0 && c.IdleTTL > 0 && now.Sub(e.lastUsed) > c.IdleTTL
}

// TryGet returns the value of an unexpired entry without adding a reference.
func (c *Cache[T]) TryGet(key string) (value T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return value, false
	}
	now := time.Now()
	if c.expired(e, now) {
		delete(c.entries, key)
		return value, false
	}
	e.lastUsed = now
	return e.value, true
}

// Add stores value under key unless an entry exists already. The stored value
// is returned so that concurrent writers converge on the same instance.
func (c *Cache[T]) Add(key string, value T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok && !c.expired(e, now) {
		e.lastUsed = now
		return e.value
	}
	c.entries[key] = &cacheEntry[T]{value: value, lastUsed: now}
	c.failures.Remove(key)
	return value
}

// AddReference records one more consumer of key.
func (c *Cache[T]) AddReference(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.refs++
	e.lastUsed = time.Now()
	return true
}

// Dereference records that one consumer of key let go of it.
func (c *Cache[T]) Dereference(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.refs > 0 {
		e.refs--
	}
	e.lastUsed = time.Now()
}

// References returns the number of consumers holding key.
func (c *Cache[T]) References(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of stored entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Unload drops every unreferenced entry that has been idle for longer than the
// idle TTL and returns how many were dropped. Referenced entries are never dropped.
func (c *Cache[T]) Unload() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	dropped := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			dropped++
		}
	}
	if dropped > 0 {
		CacheUnloadedCounterTotal.WithLabelValues(c.Name).Add(float64(dropped))
	}
	return dropped
}

// AddIrrecoverableFailure remembers that key cannot be loaded.
func (c *Cache[T]) AddIrrecoverableFailure(key string, err error) {
	c.failures.Add(key, failureRecord{err: err, expires: time.Now().Add(c.FailureTTL)})
	IrrecoverableFailureCounterTotal.WithLabelValues(c.Name).Inc()
}

// IrrecoverableFailure returns the remembered failure of key or nil.
func (c *Cache[T]) IrrecoverableFailure(key string) error {
	rec, ok := c.failures.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(rec.expires) {
		c.failures.Remove(key)
		return nil
	}
	return rec.err
}
