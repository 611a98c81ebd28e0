package biz

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/poll_insight/internal/conf"
	"github.com/iWorld-y/poll_insight/pkg/retry"
)

// ErrEmptyQuery 请求缺少问题文本
var ErrEmptyQuery = errors.New("query is required")

// ErrGenerationTimeout 生成调用超出整体时限，不重试
var ErrGenerationTimeout = errors.New("report generation timed out")

// 数据不足时直接作为报告返回的降级文案，属于正常结束而非错误
const (
	noDataReport = "I couldn't find any relevant survey data for your question. " +
		"Please try a different query."
	noArticlesReport = "I found some survey data, but couldn't retrieve associated articles. " +
		"Generating a report based on available metadata."
)

const (
	defaultSearchLimit = 10
	defaultGenTimeout  = 2 * time.Minute
	generateMaxRetries = 3
	defaultRetryBase   = 2 * time.Second
	maxRefinedQueries  = 3
	chartFallbackTitle = "Poll chart"
)

// PollSearcher 报告管线消费的检索能力，PollRepo 与 HTTP 兜底客户端都实现它
type PollSearcher interface {
	SearchPolls(ctx context.Context, query string, limit int) ([]*Poll, error)
}

// ReportUseCase 报告合成管线：
// 改写查询 → 并发检索 → 合并去重 → 过滤来源链接 → 取回正文 →
// 组装提示词 → 调用生成模型 → 替换图表占位符。
type ReportUseCase struct {
	polls    PollRepo
	fallback PollSearcher
	articles ArticleRepo
	refiner  QueryRefiner
	factory  GeneratorFactory

	searchLimit int
	embedBase   string
	genTimeout  time.Duration
	retryBase   time.Duration

	log *log.Helper
}

func NewReportUseCase(
	c *conf.Report,
	polls PollRepo,
	fallback PollSearcher,
	articles ArticleRepo,
	refiner QueryRefiner,
	factory GeneratorFactory,
	logger log.Logger,
) *ReportUseCase {
	uc := &ReportUseCase{
		polls:       polls,
		fallback:    fallback,
		articles:    articles,
		refiner:     refiner,
		factory:     factory,
		searchLimit: defaultSearchLimit,
		genTimeout:  defaultGenTimeout,
		retryBase:   defaultRetryBase,
		log:         log.NewHelper(logger),
	}
	if c != nil {
		if c.SearchLimit > 0 {
			uc.searchLimit = int(c.SearchLimit)
		}
		uc.embedBase = strings.TrimRight(c.EmbedBaseUrl, "/")
		if c.Timeout != "" {
			if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
				uc.genTimeout = d
			}
		}
	}
	return uc
}

// Generate 为一个用户问题合成完整报告。返回的字符串要么是生成的
// Markdown 报告，要么是数据不足时的降级文案；错误只来自输入校验、
// 配置缺失或生成模型的终态失败。
func (uc *ReportUseCase) Generate(ctx context.Context, query, model string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	gen, err := uc.factory.Generator(model)
	if err != nil {
		return "", err
	}

	queries := uc.acquireQueries(ctx, query)
	merged := uc.fanOutSearch(ctx, queries)
	polls := DedupePolls(merged)
	if len(polls) == 0 {
		uc.log.WithContext(ctx).Infof("no polls found for query %q, returning degraded report", query)
		return noDataReport, nil
	}

	urls := collectArticleURLs(polls)
	if len(urls) == 0 {
		uc.log.WithContext(ctx).Infof("polls found but no valid article URLs for query %q", query)
		return noArticlesReport, nil
	}

	articles := uc.fetchArticles(ctx, urls)

	system, prompt := BuildReportPrompt(query, articles, polls)

	text, err := uc.generate(ctx, gen, system, prompt)
	if err != nil {
		return "", err
	}

	return SubstituteChartEmbeds(text, polls, uc.embedBase), nil
}

// acquireQueries 产出 1..3 条检索式。改写失败就退回原始问题，
// 保证集合永远非空。
func (uc *ReportUseCase) acquireQueries(ctx context.Context, question string) []string {
	if uc.refiner == nil {
		return []string{question}
	}

	refined, err := uc.refiner.Refine(ctx, question)
	if err != nil {
		uc.log.WithContext(ctx).Warnf("query refinement failed, falling back to raw question: %v", err)
		return []string{question}
	}

	queries := make([]string, 0, maxRefinedQueries)
	for _, q := range refined {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxRefinedQueries {
			break
		}
	}
	if len(queries) == 0 {
		return []string{question}
	}
	return queries
}

// fanOutSearch 并发执行所有检索式，等待全部完成后按检索式顺序拼接。
// 单条检索的失败被降级为空结果，不会中断整个管线。
func (uc *ReportUseCase) fanOutSearch(ctx context.Context, queries []string) []*Poll {
	results := make([][]*Poll, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = uc.searchLenient(ctx, q)
		}()
	}
	wg.Wait()

	var merged []*Poll
	for _, rs := range results {
		merged = append(merged, rs...)
	}
	return merged
}

// searchLenient 先直连检索，失败后走 HTTP 兜底；两路都失败返回空。
// 调用方无法区分“没有结果”与“存储故障”，这是有意的简化。
func (uc *ReportUseCase) searchLenient(ctx context.Context, query string) []*Poll {
	polls, err := uc.polls.SearchPolls(ctx, query, uc.searchLimit)
	if err == nil {
		return polls
	}
	uc.log.WithContext(ctx).Warnf("poll search failed for %q: %v", query, err)

	if uc.fallback == nil {
		return nil
	}
	polls, err = uc.fallback.SearchPolls(ctx, query, uc.searchLimit)
	if err != nil {
		uc.log.WithContext(ctx).Warnf("fallback poll search failed for %q: %v", query, err)
		return nil
	}
	return polls
}

func (uc *ReportUseCase) fetchArticles(ctx context.Context, urls []string) []*Article {
	articles, err := uc.articles.FetchArticles(ctx, urls)
	if err != nil {
		// 文章缺失只会降低报告质量，绝不让整个请求失败
		uc.log.WithContext(ctx).Warnf("article retrieval failed, continuing with metadata only: %v", err)
		return nil
	}
	return articles
}

// generate 调用生成模型：整体超时约束下，仅对限流错误做线性退避重试。
func (uc *ReportUseCase) generate(ctx context.Context, gen Generator, system, prompt string) (string, error) {
	var out string
	err := retry.WithTimeout(ctx, uc.genTimeout, func(tctx context.Context) error {
		return retry.Do(tctx, retry.Policy{
			MaxRetries: generateMaxRetries,
			BaseDelay:  uc.retryBase,
			Retryable:  func(err error) bool { return errors.Is(err, ErrRateLimited) },
		}, func(c context.Context) error {
			text, err := gen.Generate(c, system, prompt)
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return ErrEmptyCompletion
			}
			out = text
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrGenerationTimeout, uc.genTimeout)
		}
		return "", err
	}
	return out, nil
}

// collectArticleURLs 收集去重后的合法来源链接，保持首次出现的顺序
func collectArticleURLs(polls []*Poll) []string {
	seen := make(map[string]struct{}, len(polls))
	var urls []string
	for _, p := range polls {
		if !ValidArticleURL(p.URL) {
			continue
		}
		if _, ok := seen[p.URL]; ok {
			continue
		}
		seen[p.URL] = struct{}{}
		urls = append(urls, p.URL)
	}
	return urls
}

var chartPlaceholderPattern = regexp.MustCompile(`\[CHART:\s*([^\]\s]+?)\s*\]`)

// SubstituteChartEmbeds 把生成文本中的 [CHART:<id>] 占位符替换为
// 可内嵌的 iframe 标记。未知 id 同样产出合法标记，使用兜底标题。
// 除占位符之外的内容保持原样。
func SubstituteChartEmbeds(text string, polls []*Poll, embedBase string) string {
	titles := make(map[string]string, len(polls))
	for _, p := range polls {
		title := p.ChartData.Title
		if title == "" {
			title = p.Title
		}
		titles[p.ID] = title
	}

	return chartPlaceholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := chartPlaceholderPattern.FindStringSubmatch(match)[1]
		title := titles[id]
		if title == "" {
			title = chartFallbackTitle
		}
		return fmt.Sprintf(
			`<iframe src="%s/embed/%s" title="%s" width="100%%" height="420" frameborder="0" loading="lazy"></iframe>`,
			embedBase, url.PathEscape(id), html.EscapeString(title),
		)
	})
}
