package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestLayered(t *testing.T) (*Layered, *MemoryTier, *DiskTier) {
	t.Helper()
	disk, err := NewDiskTier(t.TempDir(), testLogger())
	require.NoError(t, err)
	memory := NewMemoryTier(16)
	return NewLayered(memory, disk, testLogger()), memory, disk
}

func TestKeyDeterministic(t *testing.T) {
	a := NewKey(PrefixMatchDetails, "NA1_123", "americas")
	b := NewKey(PrefixMatchDetails, "NA1_123", "americas")
	assert.Equal(t, a, b)
	assert.Len(t, a.Hash, 40)
}

func TestKeyDistinctInputsDistinctHashes(t *testing.T) {
	seen := make(map[string]bool)
	inputs := [][]string{
		{"NA1_1", "americas"},
		{"NA1_2", "americas"},
		{"NA1_1", "europe"},
		{"NA1", "_1americas"},
		{"", "NA1_1americas"},
	}
	for _, parts := range inputs {
		key := NewKey(PrefixMatchDetails, parts...)
		assert.False(t, seen[key.Hash], "collision for %v", parts)
		seen[key.Hash] = true
	}

	// prefix participates in the identity too
	assert.NotEqual(t,
		NewKey(PrefixAccount, "x").Hash,
		NewKey(PrefixSummoner, "x").Hash)
}

func TestLayeredSetGet(t *testing.T) {
	layered, _, _ := newTestLayered(t)

	key := NewKey(PrefixMatchDetails, "NA1_1")
	require.NoError(t, layered.Set(key, json.RawMessage(`{"a":1}`)))

	payload, ok := layered.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(payload))
}

func TestDiskPermanence(t *testing.T) {
	layered, memory, _ := newTestLayered(t)

	key := NewKey(PrefixMatchDetails, "NA1_42")
	require.NoError(t, layered.Set(key, json.RawMessage(`{"win":true}`)))

	// Simulate arbitrary delay past any memory TTL by emptying the fast tier
	memory.Clear()

	payload, ok := layered.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `{"win":true}`, string(payload))
}

func TestMemoryTTLExpiryFallsThroughToDisk(t *testing.T) {
	layered, memory, _ := newTestLayered(t)

	now := time.Now()
	memory.now = func() time.Time { return now }

	var hits []string
	layered.OnHit(func(tier string) { hits = append(hits, tier) })

	key := NewKey(PrefixMatchIDs, "puuid", "0")
	require.NoError(t, layered.Set(key, json.RawMessage(`["NA1_1"]`)))

	_, ok := layered.Get(key)
	require.True(t, ok)

	// Advance past the matchIDs TTL: memory misses, disk still serves
	now = now.Add(TTLFor(PrefixMatchIDs) + time.Minute)
	payload, ok := layered.Get(key)
	require.True(t, ok)
	assert.JSONEq(t, `["NA1_1"]`, string(payload))

	assert.Equal(t, []string{"memory", "disk"}, hits)
}

func TestDiskHitPromotesToMemory(t *testing.T) {
	layered, memory, _ := newTestLayered(t)

	key := NewKey(PrefixMatchDetails, "NA1_7")
	require.NoError(t, layered.Set(key, json.RawMessage(`{"a":7}`)))
	memory.Clear()

	_, ok := layered.Get(key)
	require.True(t, ok)

	// Promotion means the next read is a memory hit
	var hits []string
	layered.OnHit(func(tier string) { hits = append(hits, tier) })
	_, ok = layered.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"memory"}, hits)
}

func TestMemoryTierFIFOEviction(t *testing.T) {
	memory := NewMemoryTier(3)

	memory.Set("k1", json.RawMessage(`1`), time.Hour)
	memory.Set("k2", json.RawMessage(`2`), time.Hour)
	memory.Set("k3", json.RawMessage(`3`), time.Hour)
	memory.Set("k4", json.RawMessage(`4`), time.Hour)

	_, ok := memory.Get("k1")
	assert.False(t, ok, "oldest entry should be evicted")
	for _, k := range []string{"k2", "k3", "k4"} {
		_, ok := memory.Get(k)
		assert.True(t, ok, "entry %s should survive", k)
	}
}

func TestMemoryTierReinsertAfterExpiryCountsAsFresh(t *testing.T) {
	memory := NewMemoryTier(2)
	now := time.Now()
	memory.now = func() time.Time { return now }

	memory.Set("a", json.RawMessage(`1`), time.Minute)
	memory.Set("b", json.RawMessage(`2`), time.Hour)

	// Expire a through a read, then store it again.
	now = now.Add(10 * time.Minute)
	_, ok := memory.Get("a")
	require.False(t, ok)
	memory.Set("a", json.RawMessage(`3`), time.Hour)

	// Inserting c at capacity must evict b, the oldest insertion.
	memory.Set("c", json.RawMessage(`4`), time.Hour)

	_, ok = memory.Get("a")
	assert.True(t, ok, "freshly re-inserted entry must survive eviction")
	_, ok = memory.Get("b")
	assert.False(t, ok, "oldest insertion is evicted first")
	_, ok = memory.Get("c")
	assert.True(t, ok)
}

func TestMemoryTierReinsertAfterDeleteCountsAsFresh(t *testing.T) {
	memory := NewMemoryTier(2)

	memory.Set("a", json.RawMessage(`1`), time.Hour)
	memory.Set("b", json.RawMessage(`2`), time.Hour)

	memory.Delete("a")
	memory.Set("a", json.RawMessage(`3`), time.Hour)
	memory.Set("c", json.RawMessage(`4`), time.Hour)

	_, ok := memory.Get("a")
	assert.True(t, ok, "re-inserted entry is newest, not oldest")
	_, ok = memory.Get("b")
	assert.False(t, ok)
	_, ok = memory.Get("c")
	assert.True(t, ok)
}

func TestMemoryTierPrune(t *testing.T) {
	memory := NewMemoryTier(16)
	now := time.Now()
	memory.now = func() time.Time { return now }

	memory.Set("short", json.RawMessage(`1`), time.Minute)
	memory.Set("long", json.RawMessage(`2`), time.Hour)

	now = now.Add(10 * time.Minute)
	removed := memory.Prune()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, memory.Len())
}

func TestDiskCorruptFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDiskTier(dir, testLogger())
	require.NoError(t, err)

	key := NewKey(PrefixMatchDetails, "NA1_9")
	require.NoError(t, disk.Set(key.Hash, json.RawMessage(`{"ok":true}`)))

	// Corrupt the file in place
	path := filepath.Join(dir, key.Hash+".json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, ok := disk.Get(key.Hash)
	assert.False(t, ok)

	// The corrupt file is purged, not retried
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLayeredClear(t *testing.T) {
	layered, memory, disk := newTestLayered(t)

	key := NewKey(PrefixAccount, "name", "tag")
	require.NoError(t, layered.Set(key, json.RawMessage(`{}`)))
	require.NoError(t, layered.Clear())

	assert.Equal(t, 0, memory.Len())
	assert.Equal(t, 0, disk.Len())
	_, ok := layered.Get(key)
	assert.False(t, ok)
}
