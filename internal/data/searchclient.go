package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
)

// SearchClient 搜索接口的 HTTP 客户端，用作直连数据库失败后的兜底路径。
// 只是尽力而为，不提供正确性保证。
type SearchClient struct {
	baseURL string
	client  *http.Client
}

// NewSearchFallback 根据配置创建兜底客户端；未配置时返回 nil，管线跳过兜底
func NewSearchFallback(c *conf.Search) biz.PollSearcher {
	if c == nil || c.Fallback == nil || c.Fallback.BaseUrl == "" {
		return nil
	}
	timeout := time.Duration(c.Fallback.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SearchClient{
		baseURL: c.Fallback.BaseUrl,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ biz.PollSearcher = (*SearchClient)(nil)

type searchReply struct {
	Polls []*biz.Poll `json:"polls"`
	Error string      `json:"error,omitempty"`
}

// SearchPolls 实现 biz.PollSearcher
func (c *SearchClient) SearchPolls(ctx context.Context, query string, limit int) ([]*biz.Poll, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = "/api/search"

	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search api error (status %d): %s", res.StatusCode, string(body))
	}

	var reply searchReply
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode response failed: %w", err)
	}

	polls := reply.Polls
	if limit > 0 && len(polls) > limit {
		polls = polls[:limit]
	}
	return polls, nil
}
