// Package detect decides whether a capture carries a fingerprint not yet
// persisted for its operation.
package detect

import "sync"

// Cache maps operation name to the last persisted fingerprint. The store is
// the source of truth; Cache is rebuilt from it with Load.
type Cache struct {
	mu  sync.RWMutex
	fps map[string]string
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{fps: make(map[string]string)}
}

// ShouldPersist is false iff name has a recorded fingerprint equal to fp.
func (c *Cache) ShouldPersist(name, fp string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.fps[name]
	return !ok || cur != fp
}

// Record stores fp for name. Call it only after a successful write.
func (c *Cache) Record(name, fp string) {
	c.mu.Lock()
	c.fps[name] = fp
	c.mu.Unlock()
}

// Load replaces the contents with fps.
func (c *Cache) Load(fps map[string]string) {
	next := make(map[string]string, len(fps))
	for k, v := range fps {
		next[k] = v
	}
	c.mu.Lock()
	c.fps = next
	c.mu.Unlock()
}

// Len returns the number of cached operations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fps)
}
