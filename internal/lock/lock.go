package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"ztuff-backend/internal/util"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockBusy 锁被其他实例持有
var ErrLockBusy = errors.New("lock is held by another worker")

// Unlock 释放锁
type Unlock func()

// RedisLocker 基于 redsync 的分布式锁，多实例部署时使用
type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

func NewRedisLocker(rdb *redis.Client, expiry time.Duration) *RedisLocker {
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		expiry: expiry,
		tries:  3,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	mutex := l.rs.NewMutex(
		"ztuff:lock:"+key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrLockBusy, err)
	}

	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			util.Logger.Warn("释放分布式锁失败", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// LocalLocker 单实例部署或未配置 Redis 时使用的进程内锁
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLockBusy
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}
