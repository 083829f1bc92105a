package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/plantcare/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyReadingsSubject = "plantcare:readings:subject:%s"

	importLockTTL = 2 * time.Minute
)

// ReadingsLimiter throttles reading writes per subject and serializes CSV imports.
// A nil limiter allows everything; it is nil when REDIS_ADDR is unset.
type ReadingsLimiter struct {
	client  *redis.Client
	bucket  *TokenBucket
	imports *ImportLock
	rate    float64
	burst   int
}

func NewReadingsLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*ReadingsLimiter, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Info("reading rate limit disabled, REDIS_ADDR not set")
		return nil, nil
	}
	if cfg.RateLimit.ReadingsPerSecond <= 0 || cfg.RateLimit.ReadingsBurst <= 0 {
		return nil, ErrInvalidLimit
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return &ReadingsLimiter{
		client:  client,
		bucket:  NewTokenBucket(client),
		imports: NewImportLock(client, importLockTTL),
		rate:    cfg.RateLimit.ReadingsPerSecond,
		burst:   cfg.RateLimit.ReadingsBurst,
	}, nil
}

func (l *ReadingsLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowSubject takes one token from the subject's bucket.
func (l *ReadingsLimiter) AllowSubject(ctx context.Context, subject snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyReadingsSubject, subject), l.rate, l.burst)
}

// LockImport makes sure one subject runs at most one import at a time. The returned
// release func is safe to call when the lock was not taken.
func (l *ReadingsLimiter) LockImport(ctx context.Context, subject snowflake.ID) (func(), bool, error) {
	if !l.Enabled() {
		return func() {}, true, nil
	}
	lease, err := l.imports.Acquire(ctx, subject)
	if err != nil || lease == nil {
		return func() {}, false, err
	}
	return func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}, true, nil
}
