package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "rewind:cache:"

// RedisTier is a Redis-backed fast tier, selected when REDIS_URL is
// configured. It lets several bot processes share one hot cache while the
// disk tier stays local. Failures are logged and treated as misses; the
// disk tier backstops everything.
type RedisTier struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisTier(client *redis.Client, logger *logrus.Logger) *RedisTier {
	return &RedisTier{client: client, logger: logger}
}

func (r *RedisTier) Get(key string) (json.RawMessage, bool) {
	data, err := r.client.Get(context.Background(), redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warnf("Redis cache get failed: %v", err)
		}
		return nil, false
	}
	return json.RawMessage(data), true
}

func (r *RedisTier) Set(key string, payload json.RawMessage, ttl time.Duration) {
	if err := r.client.Set(context.Background(), redisKeyPrefix+key, []byte(payload), ttl).Err(); err != nil {
		r.logger.Warnf("Redis cache set failed: %v", err)
	}
}

func (r *RedisTier) Delete(key string) {
	if err := r.client.Del(context.Background(), redisKeyPrefix+key).Err(); err != nil {
		r.logger.Warnf("Redis cache delete failed: %v", err)
	}
}

func (r *RedisTier) Clear() {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		r.client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warnf("Redis cache clear failed: %v", err)
	}
}

// Prune is a no-op: Redis expires entries natively via the TTL set on write.
func (r *RedisTier) Prune() int { return 0 }

func (r *RedisTier) Len() int { return 0 }
