package cache

import (
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   json.RawMessage
	storedAt  time.Time
	expiresAt time.Time
}

// MemoryTier is the in-process fast tier: a bounded map with
// oldest-inserted-first eviction and per-entry TTL.
type MemoryTier struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	order    []string
	capacity int
	now      func() time.Time
}

func NewMemoryTier(capacity int) *MemoryTier {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryTier{
		entries:  make(map[string]*memoryEntry),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *MemoryTier) Get(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		m.removeFromOrder(key)
		return nil, false
	}
	return entry.payload, true
}

func (m *MemoryTier) Set(key string, payload json.RawMessage, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists {
		for len(m.entries) >= m.capacity && len(m.order) > 0 {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = &memoryEntry{
		payload:   payload,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

func (m *MemoryTier) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.removeFromOrder(key)
	}
}

// removeFromOrder drops one key from the insertion order list so a later
// re-insert of the same key counts as a fresh insertion. Caller must hold
// the lock.
func (m *MemoryTier) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *MemoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	m.order = nil
}

// Prune drops expired entries and compacts the insertion order list.
func (m *MemoryTier) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}

	if removed > 0 {
		kept := m.order[:0]
		for _, key := range m.order {
			if _, ok := m.entries[key]; ok {
				kept = append(kept, key)
			}
		}
		m.order = kept
	}
	return removed
}

func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
