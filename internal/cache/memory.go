package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	epoch   int64
	expires time.Time
}

// MemoryCache is a NextEventCache for a single process.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[int64]map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[int64]map[int64]memoryEntry),
		now:     time.Now,
	}
}

var _ NextEventCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, ownerID, offsetSeconds int64) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ownerID][offsetSeconds]
	if !ok {
		return 0, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries[ownerID], offsetSeconds)
		return 0, false, nil
	}
	return e.epoch, true, nil
}

// Set stores epoch. A non-positive ttl never expires.
func (c *MemoryCache) Set(_ context.Context, ownerID, offsetSeconds, epoch int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{epoch: epoch}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	byOffset, ok := c.entries[ownerID]
	if !ok {
		byOffset = make(map[int64]memoryEntry)
		c.entries[ownerID] = byOffset
	}
	byOffset[offsetSeconds] = e
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ownerID)
	return nil
}
