package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Bucket accumulates counters for one wall-clock bucket.
type Bucket struct {
	Requests  int64 `json:"requests"`
	Errors    int64 `json:"errors"`
	CacheHits int64 `json:"cacheHits"`
}

// KeyUsage holds cumulative per-credential counters.
type KeyUsage struct {
	Requests int64 `json:"requests"`
	Errors   int64 `json:"errors"`
}

// persistedStats is the on-disk shape, one aggregate structure keyed by
// bucket label. Persistence is approximate: counts survive restarts to
// within one flush interval.
type persistedStats struct {
	Minute map[string]*Bucket   `json:"minute"`
	Hour   map[string]*Bucket   `json:"hour"`
	Day    map[string]*Bucket   `json:"day"`
	Keys   map[string]*KeyUsage `json:"keys"`
}

// Snapshot is the read-only usage summary for external reporting.
type Snapshot struct {
	CurrentMinute  Bucket              `json:"current_minute"`
	CurrentHour    Bucket              `json:"current_hour"`
	CurrentDay     Bucket              `json:"current_day"`
	PerMinuteLimit int                 `json:"per_minute_limit"`
	CacheHitRatio  float64             `json:"cache_hit_ratio"`
	Keys           map[string]KeyUsage `json:"keys"`
}

const (
	minuteLayout = "2006-01-02T15:04"
	hourLayout   = "2006-01-02T15"
	dayLayout    = "2006-01-02"

	minuteRetention = time.Hour
	hourRetention   = 24 * time.Hour
	dayRetention    = 7 * 24 * time.Hour
)

// Monitor tracks request volume in rolling minute/hour/day buckets, answers
// the admission check against the per-minute ceiling, and persists its
// counters every Nth write.
type Monitor struct {
	mu sync.Mutex

	minute map[string]*Bucket
	hour   map[string]*Bucket
	day    map[string]*Bucket
	keys   map[string]*KeyUsage

	perMinuteLimit int
	alertPercent   int
	alertedMinute  string

	statsPath    string
	persistEvery int
	writes       int

	logger *logrus.Logger
	now    func() time.Time
}

func NewMonitor(perMinuteLimit, alertPercent int, statsPath string, persistEvery int, logger *logrus.Logger) *Monitor {
	if persistEvery <= 0 {
		persistEvery = 25
	}
	m := &Monitor{
		minute:         make(map[string]*Bucket),
		hour:           make(map[string]*Bucket),
		day:            make(map[string]*Bucket),
		keys:           make(map[string]*KeyUsage),
		perMinuteLimit: perMinuteLimit,
		alertPercent:   alertPercent,
		statsPath:      statsPath,
		persistEvery:   persistEvery,
		logger:         logger,
		now:            time.Now,
	}
	m.load()
	return m
}

// CanAdmit reports whether another upstream request fits inside the current
// minute's ceiling. When denied it returns how long until the bucket rolls
// over. Advisory alerts never block.
func (m *Monitor) CanAdmit() (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	bucket := m.bucketLocked(m.minute, now.Format(minuteLayout))
	if int(bucket.Requests) < m.perMinuteLimit {
		return true, 0
	}

	rollover := now.Truncate(time.Minute).Add(time.Minute)
	wait := rollover.Sub(now)
	if wait <= 0 {
		wait = time.Second
	}
	return false, wait
}

// Record updates every bucket granularity plus the per-key counters for one
// completed request or cache hit.
func (m *Monitor) Record(keyID, endpoint string, status int, fromCache bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	minuteLabel := now.Format(minuteLayout)
	buckets := []*Bucket{
		m.bucketLocked(m.minute, minuteLabel),
		m.bucketLocked(m.hour, now.Format(hourLayout)),
		m.bucketLocked(m.day, now.Format(dayLayout)),
	}

	isError := status >= 400
	for _, b := range buckets {
		if fromCache {
			b.CacheHits++
			continue
		}
		b.Requests++
		if isError {
			b.Errors++
		}
	}

	if !fromCache && keyID != "" {
		usage := m.keys[keyID]
		if usage == nil {
			usage = &KeyUsage{}
			m.keys[keyID] = usage
		}
		usage.Requests++
		if isError {
			usage.Errors++
		}
	}

	// Advisory threshold warning, once per minute bucket
	if !fromCache && m.alertPercent > 0 {
		current := buckets[0].Requests
		threshold := int64(m.perMinuteLimit * m.alertPercent / 100)
		if current >= threshold && m.alertedMinute != minuteLabel {
			m.alertedMinute = minuteLabel
			m.logger.WithFields(logrus.Fields{
				"requests": current,
				"limit":    m.perMinuteLimit,
				"endpoint": endpoint,
			}).Warn("Riot api usage approaching per-minute ceiling")
		}
	}

	m.writes++
	if m.writes%m.persistEvery == 0 {
		m.persistLocked()
	}
}

// GetSnapshot returns the current usage summary.
func (m *Monitor) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	minute := m.bucketLocked(m.minute, now.Format(minuteLayout))
	hour := m.bucketLocked(m.hour, now.Format(hourLayout))
	day := m.bucketLocked(m.day, now.Format(dayLayout))

	ratio := 0.0
	if total := day.Requests + day.CacheHits; total > 0 {
		ratio = float64(day.CacheHits) / float64(total)
	}

	keys := make(map[string]KeyUsage, len(m.keys))
	for id, usage := range m.keys {
		keys[id] = *usage
	}

	return Snapshot{
		CurrentMinute:  *minute,
		CurrentHour:    *hour,
		CurrentDay:     *day,
		PerMinuteLimit: m.perMinuteLimit,
		CacheHitRatio:  ratio,
		Keys:           keys,
	}
}

// Prune drops buckets past their retention: minutes older than an hour,
// hours older than a day, days older than a week.
func (m *Monitor) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	removed += pruneBuckets(m.minute, minuteLayout, now.Add(-minuteRetention))
	removed += pruneBuckets(m.hour, hourLayout, now.Add(-hourRetention))
	removed += pruneBuckets(m.day, dayLayout, now.Add(-dayRetention))
	return removed
}

// Flush forces a persistence write.
func (m *Monitor) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persistLocked()
}

func (m *Monitor) bucketLocked(buckets map[string]*Bucket, label string) *Bucket {
	b := buckets[label]
	if b == nil {
		b = &Bucket{}
		buckets[label] = b
	}
	return b
}

func pruneBuckets(buckets map[string]*Bucket, layout string, cutoff time.Time) int {
	removed := 0
	for label := range buckets {
		t, err := time.ParseInLocation(layout, label, time.Local)
		if err != nil || t.Before(cutoff) {
			delete(buckets, label)
			removed++
		}
	}
	return removed
}

func (m *Monitor) persistLocked() error {
	if m.statsPath == "" {
		return nil
	}

	stats := persistedStats{
		Minute: m.minute,
		Hour:   m.hour,
		Day:    m.day,
		Keys:   m.keys,
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal usage stats: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.statsPath), 0o755); err != nil {
		return fmt.Errorf("failed to create stats dir: %w", err)
	}
	tmp := m.statsPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write usage stats: %w", err)
	}
	if err := os.Rename(tmp, m.statsPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit usage stats: %w", err)
	}
	return nil
}

// load restores persisted counters at startup, best effort.
func (m *Monitor) load() {
	if m.statsPath == "" {
		return
	}
	data, err := os.ReadFile(m.statsPath)
	if err != nil {
		return
	}

	var stats persistedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		m.logger.Warnf("Ignoring corrupt usage stats file: %v", err)
		return
	}
	if stats.Minute != nil {
		m.minute = stats.Minute
	}
	if stats.Hour != nil {
		m.hour = stats.Hour
	}
	if stats.Day != nil {
		m.day = stats.Day
	}
	if stats.Keys != nil {
		m.keys = stats.Keys
	}
}
