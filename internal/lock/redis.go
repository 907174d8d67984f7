package lock

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "premium-verification:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX leases. A lease expires after ttl
// even if the holder dies.
type Redis struct {
	client   redis.UniversalClient
	ttl      time.Duration
	retry    time.Duration
	logger   *zap.Logger
	newToken func() string
}

// NewRedis builds a Redis-backed Locker.
func NewRedis(client redis.UniversalClient, ttl, retry time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &Redis{client: client, ttl: ttl, retry: retry, logger: logger, newToken: uuid.NewString}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := r.newToken()

	policy := backoff.WithContext(backoff.NewConstantBackOff(r.retry), ctx)
	err := backoff.Retry(func() error {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, policy)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
		return nil, err
	}

	return func() {
		// Release on a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil {
			r.logger.Warn("lock release failed", zap.String("key", redisKey), zap.Error(err))
		}
	}, nil
}
