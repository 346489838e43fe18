package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("consultation lock not acquired")
)

// Locker guards critical sections that read-modify-write a single
// consultation row, such as OTP issuance.
type Locker interface {
	WithConsultationLock(ctx context.Context, consultationID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisConsultationLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisConsultationLocker creates a locker that uses a per consultation Redis key
func NewRedisConsultationLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisConsultationLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisConsultationLocker) WithConsultationLock(ctx context.Context, consultationID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:consultation:%s", consultationID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire consultation lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisConsultationLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release consultation lock: %w", err)
	}
	return nil
}
