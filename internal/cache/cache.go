package cache

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// FastTier is the hot layer of the cache: bounded, TTL-governed, cheap to
// read. The in-process MemoryTier and the RedisTier both implement it.
type FastTier interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, payload json.RawMessage, ttl time.Duration)
	Delete(key string)
	Clear()
	Prune() int
	Len() int
}

// Layered composes the fast tier over the permanent disk tier. Reads check
// the fast tier first, fall through to disk, and promote disk hits back into
// the fast tier. Writes go to both.
type Layered struct {
	fast   FastTier
	disk   *DiskTier
	logger *logrus.Logger

	// optional read-through spy for tests and hit-ratio accounting
	onHit func(tier string)
}

func NewLayered(fast FastTier, disk *DiskTier, logger *logrus.Logger) *Layered {
	return &Layered{fast: fast, disk: disk, logger: logger}
}

// OnHit registers a callback invoked with "memory" or "disk" on every hit.
func (c *Layered) OnHit(fn func(tier string)) {
	c.onHit = fn
}

func (c *Layered) Get(key Key) (json.RawMessage, bool) {
	if payload, ok := c.fast.Get(key.Hash); ok {
		if c.onHit != nil {
			c.onHit("memory")
		}
		return payload, true
	}

	payload, ok := c.disk.Get(key.Hash)
	if !ok {
		return nil, false
	}

	// Disk has no expiry, so a disk hit is always valid. Promote it so the
	// next read stays off the filesystem.
	c.fast.Set(key.Hash, payload, TTLFor(key.Prefix))
	if c.onHit != nil {
		c.onHit("disk")
	}
	return payload, true
}

func (c *Layered) Set(key Key, payload json.RawMessage) error {
	c.fast.Set(key.Hash, payload, TTLFor(key.Prefix))
	if err := c.disk.Set(key.Hash, payload); err != nil {
		c.logger.Warnf("Disk cache write failed for %s: %v", key.Prefix, err)
		return err
	}
	return nil
}

func (c *Layered) Delete(key Key) {
	c.fast.Delete(key.Hash)
	c.disk.Delete(key.Hash)
}

// Clear wipes both tiers. Administrative use only.
func (c *Layered) Clear() error {
	c.fast.Clear()
	return c.disk.Clear()
}

// PruneFastTier evicts expired fast-tier entries.
func (c *Layered) PruneFastTier() int {
	return c.fast.Prune()
}

// Stats reports entry counts per tier.
func (c *Layered) Stats() map[string]interface{} {
	return map[string]interface{}{
		"fast_entries": c.fast.Len(),
		"disk_entries": c.disk.Len(),
	}
}
