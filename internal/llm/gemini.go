package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider Google 生成模型接口的提供方
type GeminiProvider struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

var _ biz.Generator = (*GeminiProvider)(nil)

func NewGeminiProvider(ctx context.Context, c *conf.Gemini, limiter *rate.Limiter) (*GeminiProvider, error) {
	if c.ApiKey == "" {
		return nil, fmt.Errorf("gemini api_key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.ApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}

	model := c.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{client: client, model: model, limiter: limiter}, nil
}

// Generate 实现 biz.Generator。安全拦截会被归类为 ErrContentFiltered，
// 与一般的结构异常区分开。
func (p *GeminiProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", biz.ErrContentFiltered, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: completion stopped by safety filter", biz.ErrContentFiltered)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", biz.ErrEmptyCompletion
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("%w: %v", biz.ErrRateLimited, err)
		}
	}
	return classifyGenerationError(err)
}
