package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

const keyImportLock = "plantcare:readings:import:%s"

// Deletes the key only while it still carries the caller's token.
const releaseLeaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var errInvalidTTL = errors.New("import lock ttl must be positive")

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// ImportLock serializes CSV imports per subject. Leases expire after ttl, so an
// import that dies mid-way blocks its subject for at most that long.
type ImportLock struct {
	client  lockClient
	release *redis.Script
	ttl     time.Duration
}

// Lease is a held import lock.
type Lease struct {
	lock  *ImportLock
	key   string
	token string
	once  sync.Once
}

func NewImportLock(client lockClient, ttl time.Duration) *ImportLock {
	if client == nil {
		return nil
	}
	return &ImportLock{
		client:  client,
		release: redis.NewScript(releaseLeaseScript),
		ttl:     ttl,
	}
}

// Acquire returns a nil lease without error when another import holds the subject.
func (l *ImportLock) Acquire(ctx context.Context, subject snowflake.ID) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrNotConfigured
	}
	if subject == 0 {
		return nil, errEmptyKey
	}
	if l.ttl <= 0 {
		return nil, errInvalidTTL
	}

	key := importLockKey(subject)
	token := ulid.Make().String()
	taken, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}
	if !taken {
		return nil, nil
	}
	return &Lease{lock: l, key: key, token: token}, nil
}

// Release gives the lease back once; later calls are no-ops.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.lock == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		err = l.lock.release.Run(ctx, l.lock.client, []string{l.key}, l.token).Err()
	})
	return err
}

func importLockKey(subject snowflake.ID) string {
	return fmt.Sprintf(keyImportLock, subject)
}
