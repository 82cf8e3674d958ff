package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medstock-backend/internal/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds keys across processes with SET NX PX. The TTL bounds how
// long a crashed holder can block a course.
type RedisLocker struct {
	rdb       *goredis.Client
	log       *logger.Logger
	prefix    string
	ttl       time.Duration
	retryWait time.Duration
}

func NewRedisLocker(addr string, log *logger.Logger) (*RedisLocker, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisLocker{
		rdb:       rdb,
		log:       log.With("service", "RedisLocker"),
		prefix:    "medstock:lock:",
		ttl:       15 * time.Second,
		retryWait: 25 * time.Millisecond,
	}, nil
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := r.prefix + key

	for {
		ok, err := r.rdb.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryWait):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Release with a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{full}, token).Err(); err != nil {
			r.log.Warn("redis unlock failed", "key", key, "error", err)
		}
	}, nil
}

func (r *RedisLocker) Close() error {
	return r.rdb.Close()
}
