// Package cache 提供进程内 get-or-compute 的 TTL 缓存
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TTL 单值读穿缓存。并发刷新通过 singleflight 合并为一次计算。
type TTL[T any] struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	value   T
	ok      bool
	updated time.Time
}

// NewTTL 创建保鲜期为 ttl 的缓存
func NewTTL[T any](ttl time.Duration) *TTL[T] {
	return &TTL[T]{ttl: ttl}
}

// Get 返回缓存值；过期、缺失或 refresh 为 true 时调用 compute 重建。
// compute 失败不会污染已有缓存。
func (c *TTL[T]) Get(ctx context.Context, refresh bool, compute func(context.Context) (T, error)) (T, error) {
	if !refresh {
		c.mu.RLock()
		if c.ok && time.Since(c.updated) < c.ttl {
			v := c.value
			c.mu.RUnlock()
			return v, nil
		}
		c.mu.RUnlock()
	}

	v, err, _ := c.group.Do("value", func() (interface{}, error) {
		got, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.value = got
		c.ok = true
		c.updated = time.Now()
		c.mu.Unlock()
		return got, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// LastUpdated 返回最近一次成功重建的时间，零值表示尚未有缓存
func (c *TTL[T]) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updated
}
