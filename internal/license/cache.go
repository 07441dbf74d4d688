package license

import "sync"

// Cache is a single-slot secret cache. It lives for the process lifetime so
// warm invocations skip the external store; there is no expiry.
type Cache struct {
	mu  sync.Mutex
	val string
	set bool
}

// Get returns the cached secret and whether one is present.
func (c *Cache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val, c.set
}

// Put stores the secret.
func (c *Cache) Put(val string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = val
	c.set = true
}
