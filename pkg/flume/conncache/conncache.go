// Package conncache keeps long-lived connections (database handles, SFTP
// sessions) open between statements, with a size limit, a TTL and an
// optional health check.
package conncache

import (
	"sync"
	"time"
)

// Options configure a Cache.
type Options[T any] struct {
	// MaxSize bounds the number of cached connections; the least recently
	// used one is closed to make room.
	MaxSize int
	// TTL is how long a connection may live after it was opened.
	TTL time.Duration
	// Health, when set, is run on every Get; a failing connection is
	// closed and evicted.
	Health func(T) error
	// Close releases a connection.
	Close func(T) error
	// OnError receives errors from closing evicted connections.
	OnError func(key string, err error)
}

// Cache is a keyed set of open connections. It is safe for concurrent use.
type Cache[T any] struct {
	opts        Options[T]
	mu          sync.Mutex
	conns       map[string]*entry[T]
	cleanupTick time.Duration
	cleanupOnce sync.Once
	stop        chan struct{}
	closed      bool
	now         func() time.Time
}

type entry[T any] struct {
	conn      T
	createdAt time.Time
	lastUsed  time.Time
}

// New creates a cache.
func New[T any](opts Options[T]) *Cache[T] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 16
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.Close == nil {
		opts.Close = func(T) error { return nil }
	}
	return &Cache[T]{
		opts:        opts,
		conns:       make(map[string]*entry[T]),
		cleanupTick: 5 * time.Minute,
		stop:        make(chan struct{}),
		now:         time.Now,
	}
}

// Get returns the connection cached under key if it is still fresh and
// healthy.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	c.mu.Lock()
	e, ok := c.conns[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	now := c.now()
	if now.Sub(e.createdAt) > c.opts.TTL {
		c.evict(key, e)
		c.mu.Unlock()
		return zero, false
	}
	c.mu.Unlock()

	if c.opts.Health != nil {
		if err := c.opts.Health(e.conn); err != nil {
			c.mu.Lock()
			if c.conns[key] == e {
				c.evict(key, e)
			}
			c.mu.Unlock()
			return zero, false
		}
	}

	c.mu.Lock()
	e.lastUsed = now
	c.mu.Unlock()
	return e.conn, true
}

// Put caches conn under key. A connection already cached under key is
// closed.
func (c *Cache[T]) Put(key string, conn T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.conns[key]; ok {
		c.evict(key, old)
	}
	if len(c.conns) >= c.opts.MaxSize {
		c.evictLRU()
	}
	now := c.now()
	c.conns[key] = &entry[T]{conn: conn, createdAt: now, lastUsed: now}

	if !c.closed {
		c.cleanupOnce.Do(func() { go c.cleanup() })
	}
}

// GetOrOpen returns the cached connection for key, opening and caching a
// new one when there is none.
func (c *Cache[T]) GetOrOpen(key string, open func() (T, error)) (T, error) {
	if conn, ok := c.Get(key); ok {
		return conn, nil
	}
	conn, err := open()
	if err != nil {
		return conn, err
	}
	c.Put(key, conn)
	return conn, nil
}

// evict closes and removes one entry; the caller holds the lock.
func (c *Cache[T]) evict(key string, e *entry[T]) {
	if err := c.opts.Close(e.conn); err != nil && c.opts.OnError != nil {
		c.opts.OnError(key, err)
	}
	delete(c.conns, key)
}

func (c *Cache[T]) evictLRU() {
	var (
		oldestKey string
		oldest    *entry[T]
	)
	for key, e := range c.conns {
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldestKey, oldest = key, e
		}
	}
	if oldest != nil {
		c.evict(oldestKey, oldest)
	}
}

func (c *Cache[T]) cleanup() {
	ticker := time.NewTicker(c.cleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictStale()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[T]) evictStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.conns {
		if now.Sub(e.createdAt) > c.opts.TTL {
			c.evict(key, e)
		}
	}
}

// Len returns the number of cached connections.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Close closes every cached connection and stops the cleanup goroutine.
// It returns the first close error.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.stop)
	}
	var first error
	for key, e := range c.conns {
		if err := c.opts.Close(e.conn); err != nil && first == nil {
			first = err
		}
		delete(c.conns, key)
	}
	return first
}
