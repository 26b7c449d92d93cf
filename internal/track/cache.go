package track

import (
	"sync"

	"github.com/Maig0l/karaoke/internal/audio"
)

// Cache memoizes processed buffers of one track by Key. It never evicts;
// its lifetime is the track's.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*audio.Buffer
}

// NewCache returns a cache holding only the identity entry.
func NewCache(original *audio.Buffer) *Cache {
	c := &Cache{}
	c.Reset(original)
	return c
}

// Get returns the buffer stored under k.
func (c *Cache) Get(k Key) (*audio.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.entries[k]
	return b, ok
}

// Put stores b under k unless an entry already exists, and returns the
// entry that is in the cache afterwards.
func (c *Cache) Put(k Key, b *audio.Buffer) *audio.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[k]; ok {
		return old
	}
	c.entries[k] = b
	return b
}

// Len returns the number of entries, identity included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every entry and re-seeds the identity entry with original.
func (c *Cache) Reset(original *audio.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*audio.Buffer)
	if original != nil {
		c.entries[Identity] = original
	}
}
