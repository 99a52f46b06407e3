package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// diskEntry is the persisted file shape: one file per key.
type diskEntry struct {
	StoredAt int64           `json:"storedAt"`
	Payload  json.RawMessage `json:"payload"`
}

// DiskTier is the permanent tier. Entries never expire: closed match data is
// immutable upstream, so keeping it forever is the cheapest way to protect
// the rate budget across restarts. Only a structurally corrupt file is
// treated as absent (and removed).
type DiskTier struct {
	dir    string
	logger *logrus.Logger
}

func NewDiskTier(dir string, logger *logrus.Logger) (*DiskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}
	return &DiskTier{dir: dir, logger: logger}, nil
}

func (d *DiskTier) path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

func (d *DiskTier) Get(key string) (json.RawMessage, bool) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, false
	}

	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil || len(entry.Payload) == 0 {
		// Corrupt file, likely a crash mid-write. Purge it.
		d.logger.Warnf("Removing corrupt cache file %s", key)
		os.Remove(d.path(key))
		return nil, false
	}
	return entry.Payload, true
}

func (d *DiskTier) Set(key string, payload json.RawMessage) error {
	entry := diskEntry{
		StoredAt: time.Now().UnixMilli(),
		Payload:  payload,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	// Write to a temp file then rename so a crash leaves at worst one
	// corrupt file, never a truncated live one.
	tmp := d.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, d.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit cache file: %w", err)
	}
	return nil
}

func (d *DiskTier) Delete(key string) {
	os.Remove(d.path(key))
}

// Clear removes every cache file. Administrative use only.
func (d *DiskTier) Clear() error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".json" {
			os.Remove(filepath.Join(d.dir, entry.Name()))
		}
	}
	return nil
}

// Len counts the stored cache files.
func (d *DiskTier) Len() int {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			count++
		}
	}
	return count
}
