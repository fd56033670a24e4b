package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces dashboard cache entries in a shared Redis instance.
const keyPrefix = "pulseboard:dashboard:"

// Redis is a Cache backed by a Redis instance, for deployments running more
// than one API replica. Values are CBOR-encoded.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed cache over an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := cbor.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, keyPrefix+key, data, ttl).Err()
}
