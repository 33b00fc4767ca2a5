// Package holds keeps checkout stock reservations in Redis.
package holds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
)

const (
	keySessionHold     = "storefront:hold:session:%s"
	keyVariantReserved = "storefront:hold:variant:%s"
)

// placeScript adds quantity to the session hold and the variant counter and
// refreshes both expiries.
const placeScript = `
redis.call("HINCRBY", KEYS[1], ARGV[1], ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
redis.call("INCRBY", KEYS[2], ARGV[2])
redis.call("PEXPIRE", KEYS[2], ARGV[3])
return 1
`

// releaseScript gives every held quantity back to its variant counter and
// drops the session hold. Releasing twice is a no-op.
const releaseScript = `
local prefix = ARGV[1]
local held = redis.call("HGETALL", KEYS[1])
for i = 1, #held, 2 do
  local key = prefix .. held[i]
  local left = redis.call("DECRBY", key, held[i + 1])
  if left <= 0 then
    redis.call("DEL", key)
  end
end
redis.call("DEL", KEYS[1])
return #held / 2
`

type RedisStore struct {
	client  *redis.Client
	place   *redis.Script
	release *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client:  client,
		place:   redis.NewScript(placeScript),
		release: redis.NewScript(releaseScript),
	}
}

func (s *RedisStore) Place(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	variantID = strings.TrimSpace(variantID)
	if sessionID == "" || variantID == "" {
		return errors.New("hold session and variant are required")
	}
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if ttl <= 0 {
		return errors.New("hold ttl must be positive")
	}
	return s.place.Run(ctx, s.client,
		[]string{sessionKey(sessionID), variantKey(variantID)},
		variantID,
		quantity,
		ttl.Milliseconds(),
	).Err()
}

func (s *RedisStore) Release(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return s.release.Run(ctx, s.client,
		[]string{sessionKey(sessionID)},
		fmt.Sprintf(keyVariantReserved, ""),
	).Err()
}

func (s *RedisStore) Reserved(ctx context.Context, variantID string) (int64, error) {
	n, err := s.client.Get(ctx, variantKey(variantID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf(keySessionHold, sessionID)
}

func variantKey(variantID string) string {
	return fmt.Sprintf(keyVariantReserved, variantID)
}

// NoOpStore is used when Redis is not configured; nothing is reserved.
type NoOpStore struct{}

func (NoOpStore) Place(ctx context.Context, sessionID, variantID string, quantity int64, ttl time.Duration) error {
	return nil
}

func (NoOpStore) Release(ctx context.Context, sessionID string) error { return nil }

func (NoOpStore) Reserved(ctx context.Context, variantID string) (int64, error) { return 0, nil }
