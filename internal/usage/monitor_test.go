package usage

import (
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

func newTestMonitor(t *testing.T, limit int) *Monitor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.json")
	return NewMonitor(limit, 80, path, 1000, testLogger())
}

func TestCanAdmitUnderLimit(t *testing.T) {
	m := newTestMonitor(t, 5)
	allowed, _ := m.CanAdmit()
	assert.True(t, allowed)
}

func TestCanAdmitDeniesAtCeiling(t *testing.T) {
	m := newTestMonitor(t, 3)
	now := time.Date(2026, 8, 26, 12, 0, 30, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		m.Record("key-1", "match-details", 200, false, 10*time.Millisecond)
	}

	allowed, wait := m.CanAdmit()
	assert.False(t, allowed)
	assert.Equal(t, 30*time.Second, wait, "should wait until the minute rolls over")

	// Next minute admits again
	now = now.Add(time.Minute)
	allowed, _ = m.CanAdmit()
	assert.True(t, allowed)
}

func TestCacheHitsDoNotConsumeBudget(t *testing.T) {
	m := newTestMonitor(t, 2)

	for i := 0; i < 10; i++ {
		m.Record("", "cache:memory", 0, true, 0)
	}

	allowed, _ := m.CanAdmit()
	assert.True(t, allowed)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(10), snap.CurrentMinute.CacheHits)
	assert.Equal(t, int64(0), snap.CurrentMinute.Requests)
}

func TestRecordUpdatesAllGranularities(t *testing.T) {
	m := newTestMonitor(t, 100)

	m.Record("key-1", "match-details", 200, false, 10*time.Millisecond)
	m.Record("key-1", "match-details", 500, false, 10*time.Millisecond)
	m.Record("key-2", "account-by-riot-id", 200, false, 10*time.Millisecond)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(3), snap.CurrentMinute.Requests)
	assert.Equal(t, int64(1), snap.CurrentMinute.Errors)
	assert.Equal(t, int64(3), snap.CurrentHour.Requests)
	assert.Equal(t, int64(3), snap.CurrentDay.Requests)

	require.Contains(t, snap.Keys, "key-1")
	assert.Equal(t, int64(2), snap.Keys["key-1"].Requests)
	assert.Equal(t, int64(1), snap.Keys["key-1"].Errors)
	assert.Equal(t, int64(1), snap.Keys["key-2"].Requests)
}

func TestSnapshotCacheHitRatio(t *testing.T) {
	m := newTestMonitor(t, 100)

	m.Record("key-1", "match-details", 200, false, 0)
	m.Record("", "cache:disk", 0, true, 0)
	m.Record("", "cache:memory", 0, true, 0)
	m.Record("", "cache:memory", 0, true, 0)

	snap := m.GetSnapshot()
	assert.InDelta(t, 0.75, snap.CacheHitRatio, 0.001)
}

func TestPruneDropsStaleBuckets(t *testing.T) {
	m := newTestMonitor(t, 100)
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Record("key-1", "match-details", 200, false, 0)

	// Two hours later every minute bucket is stale, the hour bucket too
	now = now.Add(2 * time.Hour)
	removed := m.Prune()
	assert.GreaterOrEqual(t, removed, 1)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(0), snap.CurrentMinute.Requests)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	m := NewMonitor(100, 80, path, 1000, testLogger())

	m.Record("key-1", "match-details", 200, false, 0)
	m.Record("key-1", "match-details", 200, false, 0)
	require.NoError(t, m.Flush())

	// A fresh monitor over the same file restores the counters
	restored := NewMonitor(100, 80, path, 1000, testLogger())
	snap := restored.GetSnapshot()
	assert.Equal(t, int64(2), snap.CurrentMinute.Requests)
	assert.Equal(t, int64(2), snap.Keys["key-1"].Requests)
}

func TestPersistEveryNthWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	m := NewMonitor(100, 80, path, 2, testLogger())

	m.Record("key-1", "match-details", 200, false, 0)
	m.Record("key-1", "match-details", 200, false, 0)

	restored := NewMonitor(100, 80, path, 2, testLogger())
	snap := restored.GetSnapshot()
	assert.Equal(t, int64(2), snap.CurrentMinute.Requests)
}
