// Package retry 提供带线性退避的重试与超时组合器
package retry

import (
	"context"
	"time"
)

// Policy 重试策略
type Policy struct {
	// MaxRetries 首次调用之外允许的重试次数
	MaxRetries int
	// BaseDelay 线性退避基准：第 n 次重试前等待 BaseDelay*n
	BaseDelay time.Duration
	// Retryable 判断错误是否值得重试，nil 表示全部重试
	Retryable func(error) bool
}

// Do 按策略执行 op。上下文取消或超时会立即终止，不再重试。
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return lastErr
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		delay := p.BaseDelay * time.Duration(attempt+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WithTimeout 在限定时长内执行 op
func WithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return op(tctx)
}
