// Package failure tracks per-node failure counts for the request executor.
package failure

import (
	"sync"
	"sync/atomic"
)

// maxToleratedFailures is how many consecutive failures a node may accrue
// and still be considered for dispatch. A node may fail once before being
// skipped.
const maxToleratedFailures = 1

// Counters holds a per-URL failure count. Counts only grow under Increment
// and only return to zero under Reset; the set of URLs is bounded by cluster
// size, so entries are never evicted. All methods are safe for concurrent
// use and reads are lock-free once an entry exists.
type Counters struct {
	mu      sync.RWMutex
	entries map[string]*int64
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{
		entries: make(map[string]*int64),
	}
}

// Get returns the current failure count for a URL.
func (c *Counters) Get(url string) int64 {
	c.mu.RLock()
	entry, exists := c.entries[url]
	c.mu.RUnlock()
	if !exists {
		return 0
	}
	return atomic.LoadInt64(entry)
}

// Increment records a failure against a URL and returns the new count.
func (c *Counters) Increment(url string) int64 {
	return atomic.AddInt64(c.entry(url), 1)
}

// Reset clears the failure count for a URL after a successful call.
func (c *Counters) Reset(url string) {
	atomic.StoreInt64(c.entry(url), 0)
}

// Eligible reports whether a URL is healthy enough to try.
func (c *Counters) Eligible(url string) bool {
	return c.Get(url) <= maxToleratedFailures
}

func (c *Counters) entry(url string) *int64 {
	c.mu.RLock()
	if entry, exists := c.entries[url]; exists {
		c.mu.RUnlock()
		return entry
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check in case another goroutine created it
	if entry, exists := c.entries[url]; exists {
		return entry
	}

	entry := new(int64)
	c.entries[url] = entry
	return entry
}
