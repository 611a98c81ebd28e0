package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
)

// OpenAIProvider 走 OpenAI 兼容接口的生成提供方。
// BaseURL 指向兼容端点即可，Azure 托管的推理服务同样适用。
type OpenAIProvider struct {
	cm      model.ToolCallingChatModel
	limiter *rate.Limiter
}

var _ biz.Generator = (*OpenAIProvider)(nil)

func NewOpenAIProvider(ctx context.Context, c *conf.OpenAI, limiter *rate.Limiter) (*OpenAIProvider, error) {
	if c.BaseUrl == "" || c.ApiKey == "" {
		return nil, fmt.Errorf("openai base_url and api_key are required")
	}

	cfg := &openai.ChatModelConfig{
		BaseURL: c.BaseUrl,
		APIKey:  c.ApiKey,
		Model:   c.Model,
	}
	if c.MaxTokens > 0 {
		maxTokens := int(c.MaxTokens)
		cfg.MaxTokens = &maxTokens
	}

	cm, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("chat model init failed: %w", err)
	}

	return &OpenAIProvider{cm: cm, limiter: limiter}, nil
}

// Generate 实现 biz.Generator
func (p *OpenAIProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	}

	resp, err := p.cm.Generate(ctx, messages)
	if err != nil {
		return "", classifyGenerationError(err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", biz.ErrEmptyCompletion
	}
	return resp.Content, nil
}
