package riot

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// apiKey is one credential in the rotation pool. All mutation goes through
// the Keyring under its lock.
type apiKey struct {
	id           string
	secret       string
	enabled      bool
	errorCount   int
	requestCount int64
	lastUsedAt   time.Time
	disabledAt   time.Time
}

// KeyHandle is what the scheduler receives for one attempt: enough to build
// the auth header and report the outcome back.
type KeyHandle struct {
	ID     string
	Secret string
}

// KeyStatus is the read-only view exposed over the admin surface.
type KeyStatus struct {
	ID           string    `json:"id"`
	Enabled      bool      `json:"enabled"`
	ErrorCount   int       `json:"error_count"`
	RequestCount int64     `json:"request_count"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// Keyring rotates over a pool of interchangeable API keys. A key that
// accumulates errorThreshold consecutive auth/rate failures is disabled and
// re-enabled lazily once its cooldown has elapsed; if every key ends up
// disabled, one emergency reset re-enables the whole pool.
type Keyring struct {
	mu             sync.Mutex
	keys           []*apiKey
	cursor         int
	errorThreshold int
	cooldown       time.Duration
	logger         *logrus.Logger
	now            func() time.Time
}

func NewKeyring(secrets []string, errorThreshold int, cooldown time.Duration, logger *logrus.Logger) *Keyring {
	keys := make([]*apiKey, 0, len(secrets))
	for i, secret := range secrets {
		if secret == "" {
			continue
		}
		keys = append(keys, &apiKey{
			id:      fmt.Sprintf("key-%d", i+1),
			secret:  secret,
			enabled: true,
		})
	}

	return &Keyring{
		keys:           keys,
		errorThreshold: errorThreshold,
		cooldown:       cooldown,
		logger:         logger,
		now:            time.Now,
	}
}

// Next returns the next usable key, round-robin over the enabled subset.
func (k *Keyring) Next() (KeyHandle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key := k.selectLocked(); key != nil {
		return KeyHandle{ID: key.id, Secret: key.secret}, nil
	}

	// Emergency path: everything is disabled, so reset the whole pool once
	// rather than refusing all work until a cooldown fires.
	if len(k.keys) > 0 {
		k.logger.Warn("All riot api keys disabled, performing emergency re-enable")
		for _, key := range k.keys {
			key.enabled = true
			key.errorCount = 0
		}
		if key := k.selectLocked(); key != nil {
			return KeyHandle{ID: key.id, Secret: key.secret}, nil
		}
	}

	return KeyHandle{}, ErrNoKeysAvailable
}

// selectLocked advances the cursor over enabled keys, waking up any key whose
// cooldown has expired. Caller must hold the lock.
func (k *Keyring) selectLocked() *apiKey {
	now := k.now()
	for i := 0; i < len(k.keys); i++ {
		key := k.keys[k.cursor%len(k.keys)]
		k.cursor++

		if !key.enabled && !key.disabledAt.IsZero() && now.Sub(key.disabledAt) >= k.cooldown {
			key.enabled = true
			key.errorCount = 0
			k.logger.Infof("Riot api key %s re-enabled after cooldown", key.id)
		}

		if key.enabled && key.secret != "" {
			key.lastUsedAt = now
			key.requestCount++
			return key
		}
	}
	return nil
}

// RecordError notes a failed attempt against a key. Auth and rate-limit
// failures count toward disablement; anything else only bumps the counter.
func (k *Keyring) RecordError(id string, status int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	key := k.findLocked(id)
	if key == nil {
		return
	}

	key.errorCount++
	if !isKeyFault(status) {
		return
	}

	if key.enabled && key.errorCount >= k.errorThreshold {
		key.enabled = false
		key.disabledAt = k.now()
		k.logger.WithFields(logrus.Fields{
			"key":    key.id,
			"status": status,
			"errors": key.errorCount,
		}).Warn("Riot api key disabled, will re-enable after cooldown")
	}
}

// RecordSuccess walks a key's error count back toward zero. It never
// re-enables a disabled key early.
func (k *Keyring) RecordSuccess(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key := k.findLocked(id); key != nil && key.errorCount > 0 {
		key.errorCount--
	}
}

func (k *Keyring) findLocked(id string) *apiKey {
	for _, key := range k.keys {
		if key.id == id {
			return key
		}
	}
	return nil
}

// Size returns the number of configured keys.
func (k *Keyring) Size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

// Snapshot returns the current state of every key for reporting.
func (k *Keyring) Snapshot() []KeyStatus {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]KeyStatus, 0, len(k.keys))
	for _, key := range k.keys {
		out = append(out, KeyStatus{
			ID:           key.id,
			Enabled:      key.enabled,
			ErrorCount:   key.errorCount,
			RequestCount: key.requestCount,
			LastUsedAt:   key.lastUsedAt,
		})
	}
	return out
}

func isKeyFault(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}
