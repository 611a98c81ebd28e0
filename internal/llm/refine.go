package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
	"github.com/iWorld-y/poll_insight/pkg/logger"
	"github.com/iWorld-y/poll_insight/pkg/retry"
)

const (
	refineToolName   = "submit_search_queries"
	refineMaxRetries = 2
	refineBaseDelay  = time.Second
)

// refineTool 改写函数的参数描述：同一问题的三个检索角度，全部必填
var refineTool = &schema.ToolInfo{
	Name: refineToolName,
	Desc: "Submit three targeted search queries that approach the user's question from different angles.",
	ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"query_one": {
			Type:     schema.String,
			Desc:     "A search query focusing on the core subject of the question.",
			Required: true,
		},
		"query_two": {
			Type:     schema.String,
			Desc:     "A search query approaching the question from a related demographic, regional or temporal angle.",
			Required: true,
		},
		"query_three": {
			Type:     schema.String,
			Desc:     "A search query covering an alternative phrasing or adjacent topic likely to surface relevant polls.",
			Required: true,
		},
	}),
}

const refineSystemPrompt = "You expand one user question about survey data into three targeted " +
	"search queries. Always respond by calling the " + refineToolName + " function, never with plain text."

// Refiner 用支持 function calling 的小模型把一个问题改写成三条检索式
type Refiner struct {
	cm         model.ToolCallingChatModel
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

var _ biz.QueryRefiner = (*Refiner)(nil)

// NewRefiner 未启用改写时返回 nil，管线退回原始问题。
// 改写走 OpenAI 兼容端点，默认复用生成模型，可用 refine.model 单独指定。
func NewRefiner(c *conf.LLM) (biz.QueryRefiner, error) {
	if c == nil || c.Refine == nil || !c.Refine.Enabled {
		return nil, nil
	}
	if c.Openai == nil || c.Openai.ApiKey == "" {
		return nil, fmt.Errorf("query refinement requires an openai-compatible endpoint")
	}

	ctx := context.Background()
	modelName := c.Refine.Model
	if modelName == "" {
		modelName = c.Openai.Model
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: c.Openai.BaseUrl,
		APIKey:  c.Openai.ApiKey,
		Model:   modelName,
	})
	if err != nil {
		return nil, fmt.Errorf("refine chat model init failed: %w", err)
	}

	tcm, err := cm.WithTools([]*schema.ToolInfo{refineTool})
	if err != nil {
		return nil, fmt.Errorf("bind refine tool failed: %w", err)
	}

	return &Refiner{
		cm:         tcm,
		limiter:    newLimiter(c),
		maxRetries: refineMaxRetries,
		baseDelay:  refineBaseDelay,
	}, nil
}

// Refine 实现 biz.QueryRefiner。结构不合法的响应会触发重试（线性退避），
// 超时立即失败不再重试；重试耗尽视为改写功能的硬失败。
func (r *Refiner) Refine(ctx context.Context, question string) ([]string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(refineSystemPrompt),
		schema.UserMessage(question),
	}

	var queries []string
	err := retry.Do(ctx, retry.Policy{
		MaxRetries: r.maxRetries,
		BaseDelay:  r.baseDelay,
		Retryable: func(err error) bool {
			return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
		},
	}, func(c context.Context) error {
		if r.limiter != nil {
			if err := r.limiter.Wait(c); err != nil {
				return err
			}
		}

		resp, err := r.cm.Generate(c, messages)
		if err != nil {
			return classifyGenerationError(err)
		}

		parsed, err := parseRefineCall(resp)
		if err != nil {
			logger.Log.Warnf("refine response rejected: %v", err)
			return err
		}
		queries = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return queries, nil
}

// parseRefineCall 校验响应里带有合法的函数调用且三个字段全部非空
func parseRefineCall(resp *schema.Message) ([]string, error) {
	if resp == nil || len(resp.ToolCalls) == 0 {
		return nil, fmt.Errorf("model returned no function call")
	}

	var call *schema.ToolCall
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Function.Name == refineToolName {
			call = &resp.ToolCalls[i]
			break
		}
	}
	if call == nil {
		return nil, fmt.Errorf("model called an unexpected function")
	}

	var args struct {
		QueryOne   string `json:"query_one"`
		QueryTwo   string `json:"query_two"`
		QueryThree string `json:"query_three"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, fmt.Errorf("malformed function arguments: %w", err)
	}

	queries := []string{
		strings.TrimSpace(args.QueryOne),
		strings.TrimSpace(args.QueryTwo),
		strings.TrimSpace(args.QueryThree),
	}
	for _, q := range queries {
		if q == "" {
			return nil, fmt.Errorf("function call missing a query field")
		}
	}
	return queries, nil
}
