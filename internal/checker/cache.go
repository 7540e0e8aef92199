package checker

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jestress/verifylinks/internal/link"
)

// Result is the memoized outcome of checking one external URL.
type Result struct {
	URL        string       `json:"url"`
	Outcome    link.Outcome `json:"outcome"`
	StatusCode int          `json:"status_code,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Attempts   int          `json:"attempts"`
	Method     string       `json:"method,omitempty"`
	CheckedAt  time.Time    `json:"checked_at"`
}

// Cache memoizes external check results for the lifetime of one run. Do runs
// at most one check per key: concurrent callers wait on the in-flight check
// and later callers read the stored result.
type Cache struct {
	mu      sync.Mutex
	results map[string]Result
	group   singleflight.Group

	calls  atomic.Int64
	checks atomic.Int64
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{results: make(map[string]Result)}
}

// Lookup returns the stored result for key, if any.
func (c *Cache) Lookup(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.results[key]
	return r, ok
}

// Do returns the result for key, running check only if no result is stored
// and no other caller is already checking the same key.
func (c *Cache) Do(key string, check func() Result) Result {
	c.calls.Add(1)
	if r, ok := c.Lookup(key); ok {
		return r
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		// A flight for key may have finished between Lookup and Do.
		if r, ok := c.Lookup(key); ok {
			return r, nil
		}
		c.checks.Add(1)
		r := check()
		c.mu.Lock()
		c.results[key] = r
		c.mu.Unlock()
		return r, nil
	})
	return v.(Result)
}

// Len is the number of distinct keys stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Checks is the number of times a check function actually ran.
func (c *Cache) Checks() int64 {
	return c.checks.Load()
}

// Hits is the number of Do calls answered without running a check.
func (c *Cache) Hits() int64 {
	return c.calls.Load() - c.checks.Load()
}
