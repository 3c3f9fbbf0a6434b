package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lock expired or another holder took it before release.
	ErrLockNotHeld = errors.New("lock not held")
)

// deletes KEYS[1] only while it still holds our token
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// Locker issues token-owned locks under a key prefix. A lock that is never released simply
// expires after its ttl.
type Locker struct {
	client *Client
	prefix string
}

func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

type Lock struct {
	locker *Locker
	key    string
	token  string
}

func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{locker: l, key: l.prefix + name, token: uuid.NewString()}

	err := l.client.rdb.SetArgs(ctx, lock.key, lock.token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrLockNotAcquired
	case err != nil:
		return nil, err
	}

	l.client.logger.WithContext(ctx).WithFields(map[string]any{"key": lock.key, "ttl": ttl.String()}).Debug("lock acquired")
	return lock, nil
}

func (lock *Lock) Release(ctx context.Context) error {
	deleted, err := compareAndDelete.Run(ctx, lock.locker.client.rdb, []string{lock.key}, lock.token).Int()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}

	lock.locker.client.logger.WithContext(ctx).WithField("key", lock.key).Debug("lock released")
	return nil
}
