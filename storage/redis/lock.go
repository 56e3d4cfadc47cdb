package redisstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/edulens/core"
)

// releaseScript deletes the key only when it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
}

var _ core.Locker = (*Locker)(nil) // interface compliance check

func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: client}
}

// Obtain sets key with a random token for ttl, or fails with core.ErrLockNotObtained.
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (core.Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "obtaining lock")
	}
	if !ok {
		return nil, core.ErrLockNotObtained
	}
	return &lock{client: l.client, key: key, token: token}, nil
}

type lock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (lk *lock) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err()
	return errors.Wrap(err, "releasing lock")
}
