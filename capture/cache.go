package capture

import (
	"sync"

	"strzcam.com/depthcast/frame"
)

// Cache holds the latest complete frame tuple per camera. Publish and
// Snapshot are atomic with respect to each other; a reader never observes a
// half-merged batch.
type Cache struct {
	mu     sync.Mutex
	frames map[string]*frame.Tuple
	count  uint64
}

func NewCache() *Cache {
	return &Cache{frames: make(map[string]*frame.Tuple)}
}

// Publish replaces the entries for exactly the cameras present in batch
// under a single critical section, leaves other cameras untouched, and bumps
// the frame count once. Returns the new count.
func (c *Cache) Publish(batch map[string]*frame.Tuple) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for serial, tuple := range batch {
		c.frames[serial] = tuple
	}
	c.count++
	return c.count
}

// Snapshot returns a point-in-time copy of the mapping and the frame count.
// The copy is never a live reference; subsequent writes are not visible.
func (c *Cache) Snapshot() (map[string]*frame.Tuple, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make(map[string]*frame.Tuple, len(c.frames))
	for serial, tuple := range c.frames {
		copied[serial] = tuple
	}
	return copied, c.count
}

// Remove drops a camera's entry, used when a device leaves the active set so
// it stops appearing in snapshots.
func (c *Cache) Remove(serial string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.frames, serial)
}
