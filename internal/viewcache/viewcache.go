// Package viewcache keeps rendered read responses until a write invalidates
// them.
package viewcache

import (
	"strings"
	"sync"
)

// Entry is a cached response body with its content type.
type Entry struct {
	ContentType string
	Body        []byte
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// gen counts invalidations.
	gen uint64
}

func New() *Cache {
	return &Cache{entries: make(map[string]Entry)}
}

func (c *Cache) Get(path string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

func (c *Cache) Put(path string, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = e
}

// Generation returns the current invalidation count. Read it before rendering
// a response and hand it to PutIfUnchanged.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// PutIfUnchanged stores e only if no invalidation happened since gen was
// read, so a response rendered from state a writer has since replaced is
// never cached. It reports whether e was stored.
func (c *Cache) PutIfUnchanged(path string, gen uint64, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[path] = e
	return true
}

// Invalidate drops the given paths. A path ending in "/*" drops every entry
// under that prefix.
func (c *Cache) Invalidate(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	for _, p := range paths {
		if prefix, ok := strings.CutSuffix(p, "/*"); ok {
			for k := range c.entries {
				if k == prefix || strings.HasPrefix(k, prefix+"/") {
					delete(c.entries, k)
				}
			}
			continue
		}
		delete(c.entries, p)
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidator is what writers depend on.
type Invalidator interface {
	Invalidate(paths ...string)
}

// Nop ignores invalidations.
type Nop struct{}

func (Nop) Invalidate(...string) {}

// RFPViews returns the paths that show data of one RFP.
func RFPViews(rfpID string) []string {
	return []string{
		"/api/rfps",
		"/api/rfps/" + rfpID + "/*",
	}
}
