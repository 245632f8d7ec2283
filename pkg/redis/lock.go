package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a lock could not be taken before the wait expired.
var ErrLockTimeout = errors.New("lock wait timed out")

const (
	lockPrefix    = "larpcal:lock:"
	lockTTL       = 30 * time.Second
	lockWait      = 10 * time.Second
	lockRetryStep = 50 * time.Millisecond
)

// Only the holder's token may release the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Lock takes a per-key mutual-exclusion lock shared by every server instance.
// The returned func releases it; the key also expires on its own after lockTTL.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := lockPrefix + key

	waitCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	for {
		ok, err := c.SetNX(waitCtx, full, token, lockTTL).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-waitCtx.Done():
			return nil, ErrLockTimeout
		case <-time.After(lockRetryStep):
		}
	}

	return func() {
		// The request context may already be cancelled; release regardless.
		if err := releaseScript.Run(context.Background(), c.Client, []string{full}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Warn("release lock", zap.String("key", full), zap.Error(err))
		}
	}, nil
}
