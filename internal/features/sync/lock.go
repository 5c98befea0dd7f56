package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go-dbsync/internal/config"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when another run of the same config holds
// the lease.
var ErrRunInProgress = errors.New("a run of this config is already in progress")

const lockKeyPrefix = "dbsync:run:"

// RunLock hands out at most one lease per config across processes.
type RunLock interface {
	Acquire(ctx context.Context, configID string) (Lease, error)
}

// Lease is held for the lifetime of one run.
type Lease interface {
	// Lost is closed when the lease could not be renewed.
	Lost() <-chan struct{}
	Release(ctx context.Context) error
}

// NewRunLock returns a Redis lease lock, or a no-op lock when no Redis URL
// is configured.
func NewRunLock(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (RunLock, error) {
	lock, closeFn, err := OpenRunLock(cfg, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeFn()
		},
	})
	return lock, nil
}

// OpenRunLock is NewRunLock without a lifecycle; the caller must call close.
func OpenRunLock(cfg *config.Config, logger *zap.Logger) (RunLock, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, runs are not locked")
		return NoopLock{}, func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return NewRedisLock(client, cfg.RunLockTTL, logger), client.Close, nil
}

// NoopLock never refuses a lease.
type NoopLock struct{}

func (NoopLock) Acquire(ctx context.Context, configID string) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Lost() <-chan struct{}             { return nil }
func (noopLease) Release(ctx context.Context) error { return nil }

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLock is a SET NX PX lease renewed by a heartbeat every ttl/3.
type RedisLock struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLock(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: client, ttl: ttl, logger: logger}
}

func (l *RedisLock) Acquire(ctx context.Context, configID string) (Lease, error) {
	key := lockKeyPrefix + configID
	token := primitive.NewObjectID().Hex()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	lease := &redisLease{
		lock:  l,
		key:   key,
		token: token,
		stop:  make(chan struct{}),
		lost:  make(chan struct{}),
	}
	lease.wg.Add(1)
	go lease.heartbeat()
	return lease, nil
}

type redisLease struct {
	lock  *RedisLock
	key   string
	token string

	stop     chan struct{}
	lost     chan struct{}
	stopOnce gosync.Once
	wg       gosync.WaitGroup
}

func (l *redisLease) Lost() <-chan struct{} { return l.lost }

func (l *redisLease) heartbeat() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.lock.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.lock.ttl/3)
			n, err := renewScript.Run(ctx, l.lock.client, []string{l.key}, l.token, l.lock.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || n == 0 {
				l.lock.logger.Warn("Run lease lost", zap.String("key", l.key), zap.Error(err))
				close(l.lost)
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
	return releaseScript.Run(ctx, l.lock.client, []string{l.key}, l.token).Err()
}
