package biz

import (
	"context"
	"errors"
)

// 生成模型的失败分类。提供方负责把各自的错误归入这几类，
// 管线据此决定重试还是终止，不在调用点做字符串匹配。
var (
	// ErrRateLimited 上游限流，可在退避后重试
	ErrRateLimited = errors.New("generation rate limited")
	// ErrContentFiltered 命中内容安全策略，需要对用户单独提示
	ErrContentFiltered = errors.New("generation blocked by content safety filter")
	// ErrEmptyCompletion 响应结构缺少非空文本
	ErrEmptyCompletion = errors.New("generation returned empty completion")
)

// Generator 报告生成模型的最小能力接口
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GeneratorFactory 按请求指定的模型名选择提供方，空名使用默认配置。
// 未配置的提供方返回错误（配置错误，对外表现为 500）。
type GeneratorFactory interface {
	Generator(model string) (Generator, error)
}

// QueryRefiner 把一个用户问题改写成最多三条检索式
type QueryRefiner interface {
	Refine(ctx context.Context, question string) ([]string, error)
}
