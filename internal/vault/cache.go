package vault

import (
	"sync"

	"github.com/awnumar/memguard"
)

// dataKeyCache holds the unwrapped data tier key in locked memory.
//
// Invalidation rules: the cache is filled on unlock, on initialise and on the
// first data tier access; it survives a soft lock; only a hard lock, a reset
// or a re-initialise replaces or destroys it.
type dataKeyCache struct {
	mu  sync.Mutex
	buf *memguard.LockedBuffer
}

func (c *dataKeyCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf == nil || !c.buf.IsAlive() {
		return "", false
	}
	return string(c.buf.Bytes()), true
}

func (c *dataKeyCache) set(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf != nil {
		c.buf.Destroy()
	}
	// NewBufferFromBytes wipes its argument, which is our private copy.
	c.buf = memguard.NewBufferFromBytes([]byte(key))
}

func (c *dataKeyCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf != nil {
		c.buf.Destroy()
		c.buf = nil
	}
}
