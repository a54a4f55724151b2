package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "cfa-planning/pkg/errors"
	"cfa-planning/pkg/redis"
)

// SlotLocker 按课时串行化生成/删除课次
// Lock 返回的 unlock 必须调用；等待超时返回 pkgerrors.ErrLockBusy
type SlotLocker interface {
	Lock(ctx context.Context, slotID string) (unlock func(), err error)
}

const (
	slotLockPrefix    = "lock:slot:"
	slotLockRetryWait = 50 * time.Millisecond
)

// ── Redis 分布式锁，多实例部署时使用 ──

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisSlotLocker 基于 Redis SET NX 的课时锁
func NewRedisSlotLocker(client *redis.Client, ttl, wait time.Duration, logger *zap.Logger) SlotLocker {
	return &redisSlotLocker{client: client, ttl: ttl, wait: wait, logger: logger}
}

func (l *redisSlotLocker) Lock(ctx context.Context, slotID string) (func(), error) {
	deadline := time.Now().Add(l.wait)
	for {
		lock, err := l.client.TryLock(ctx, slotLockPrefix+slotID, l.ttl)
		if err != nil {
			return nil, err
		}
		if lock != nil {
			return func() {
				// 释放与请求上下文解耦，避免请求取消后锁只能等 TTL 过期
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := lock.Release(releaseCtx); err != nil {
					l.logger.Warn("释放课时锁失败", zap.String("slot_id", slotID), zap.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(slotLockRetryWait):
		}
	}
}

// ── 进程内锁，单实例或未配置 Redis 时使用 ──

// localSlot 引用计数归零（无持有者也无等待者）时从表中移除
type localSlot struct {
	ch   chan struct{}
	refs int
}

type localSlotLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

// NewLocalSlotLocker 进程内按课时 ID 加锁
func NewLocalSlotLocker(wait time.Duration) SlotLocker {
	return &localSlotLocker{slots: make(map[string]*localSlot), wait: wait}
}

func (l *localSlotLocker) Lock(ctx context.Context, slotID string) (func(), error) {
	slot := l.acquire(slotID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.release(slotID, slot)
			})
		}, nil
	case <-timer.C:
		l.release(slotID, slot)
		return nil, pkgerrors.ErrLockBusy
	case <-ctx.Done():
		l.release(slotID, slot)
		return nil, ctx.Err()
	}
}

func (l *localSlotLocker) acquire(slotID string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[slotID]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[slotID] = slot
	}
	slot.refs++
	return slot
}

func (l *localSlotLocker) release(slotID string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, slotID)
	}
}

// size 当前表中的课时数
func (l *localSlotLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
