package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Cache key prefixes. The prefix selects the fast-tier TTL; the disk tier
// never expires.
const (
	PrefixAccount      = "account"
	PrefixSummoner     = "summoner"
	PrefixMatchIDs     = "matchIDs"
	PrefixMatchDetails = "matchDetails"
)

// ttlByPrefix is the fast-tier TTL per logical prefix. Closed match data is
// immutable, so it gets the longest retention; identity data can drift.
var ttlByPrefix = map[string]time.Duration{
	PrefixAccount:      time.Hour,
	PrefixSummoner:     time.Hour,
	PrefixMatchIDs:     15 * time.Minute,
	PrefixMatchDetails: 12 * time.Hour,
}

const defaultTTL = 30 * time.Minute

// TTLFor returns the fast-tier TTL for a prefix.
func TTLFor(prefix string) time.Duration {
	if ttl, ok := ttlByPrefix[prefix]; ok {
		return ttl
	}
	return defaultTTL
}

// Key identifies one cached response: a logical prefix plus a fixed-width
// hash of the identifying parameters, usable directly as a file name.
type Key struct {
	Prefix string
	Hash   string
}

// NewKey derives a deterministic key from a prefix and the ordered
// identifying parameters of the request.
func NewKey(prefix string, parts ...string) Key {
	sum := sha1.Sum([]byte(prefix + "\x1f" + strings.Join(parts, "\x1f")))
	return Key{Prefix: prefix, Hash: hex.EncodeToString(sum[:])}
}
