// Package cache memoizes telemetry tables fetched from data sources.
package cache

import (
	"sync"
	"time"

	"github.com/milosgajdos/go-soc/telemetry"
)

// Clock tells current time
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time {
	return f()
}

type entry struct {
	table     *telemetry.Table
	createdAt time.Time
}

// Cache stores telemetry tables keyed by query.
// Stored and returned tables are copies so callers may mutate them freely.
// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[telemetry.Query]entry
	clock   Clock
}

// Option configures Cache
type Option func(*Cache)

// WithClock sets the clock used to timestamp entries
func WithClock(c Clock) Option {
	return func(cache *Cache) {
		cache.clock = c
	}
}

// New creates new empty Cache and returns it.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[telemetry.Query]entry),
		clock:   ClockFunc(time.Now),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns a copy of the table stored under key if it is younger than ttl.
// Expired entries are evicted.
func (c *Cache) Get(key telemetry.Query, ttl time.Duration) (*telemetry.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.clock.Now().Sub(e.createdAt) >= ttl {
		delete(c.entries, key)
		return nil, false
	}

	return e.table.Clone(), true
}

// Put stores a copy of table under key replacing any existing entry.
func (c *Cache) Put(key telemetry.Query, table *telemetry.Table) {
	e := entry{
		table:     table.Clone(),
		createdAt: c.clock.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = e
}

// Delete removes the entry stored under key
func (c *Cache) Delete(key telemetry.Query) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Len returns the number of stored entries including expired ones not evicted yet
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
