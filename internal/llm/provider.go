// Package llm 封装报告生成所依赖的语言模型提供方。
// 提供方负责把上游错误归类为 biz 层定义的失败类别。
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
)

// Registry 按名字选择生成提供方，提供方集合由配置决定
type Registry struct {
	providers map[string]biz.Generator
	def       string
}

var _ biz.GeneratorFactory = (*Registry)(nil)

// NewRegistry 构建配置了凭据的全部提供方。一个都没配也不算启动错误：
// 凭据在请求时校验，缺失表现为 500。
func NewRegistry(c *conf.LLM) (*Registry, error) {
	r := &Registry{providers: make(map[string]biz.Generator)}
	if c == nil {
		return r, nil
	}

	ctx := context.Background()
	limiter := newLimiter(c)
	r.def = c.Provider

	if c.Openai != nil && c.Openai.ApiKey != "" {
		p, err := NewOpenAIProvider(ctx, c.Openai, limiter)
		if err != nil {
			return nil, fmt.Errorf("openai provider init failed: %w", err)
		}
		r.providers["openai"] = p
	}
	if c.Gemini != nil && c.Gemini.ApiKey != "" {
		p, err := NewGeminiProvider(ctx, c.Gemini, limiter)
		if err != nil {
			return nil, fmt.Errorf("gemini provider init failed: %w", err)
		}
		r.providers["gemini"] = p
	}

	if r.def == "" {
		if _, ok := r.providers["openai"]; ok {
			r.def = "openai"
		} else if _, ok := r.providers["gemini"]; ok {
			r.def = "gemini"
		}
	}
	return r, nil
}

// Generator 实现 biz.GeneratorFactory，空名使用默认提供方
func (r *Registry) Generator(model string) (biz.Generator, error) {
	name := model
	if name == "" {
		name = r.def
	}
	if name == "" {
		return nil, errors.New("no generation provider configured")
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("generation provider %q is not configured", name)
	}
	return p, nil
}

// newLimiter 共享限流器，按 RPM 折算速率、QPS 做突发容量
func newLimiter(c *conf.LLM) *rate.Limiter {
	rpm, qps := 60, 2
	if c.Concurrency != nil {
		if c.Concurrency.Rpm > 0 {
			rpm = int(c.Concurrency.Rpm)
		}
		if c.Concurrency.Qps > 0 {
			qps = int(c.Concurrency.Qps)
		}
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), qps)
}

// classifyGenerationError 把上游报错归类到 biz 层的失败类别。
// 上下文取消与超时原样透传，由管线决定是否不再重试。
func classifyGenerationError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", biz.ErrRateLimited, err)
	case strings.Contains(msg, "content_filter"),
		strings.Contains(msg, "content management policy"),
		strings.Contains(msg, "prompt filtered"),
		strings.Contains(msg, "responsible ai"):
		return fmt.Errorf("%w: %v", biz.ErrContentFiltered, err)
	}
	return err
}
