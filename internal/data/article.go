package data

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	readability "github.com/go-shiori/go-readability"
	"github.com/jmoiron/sqlx"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/conf"
)

const liveFetchTimeout = 30 * time.Second

type articleRepo struct {
	data      *Data
	liveFetch bool
	log       *log.Helper
}

func NewArticleRepo(data *Data, c *conf.Article, logger log.Logger) biz.ArticleRepo {
	liveFetch := false
	if c != nil {
		liveFetch = c.LiveFetch
	}
	return &articleRepo{
		data:      data,
		liveFetch: liveFetch,
		log:       log.NewHelper(logger),
	}
}

// FetchArticles 按 URL 精确匹配批量取回已抓取的正文。
// 库中缺失的 URL 直接省略；开启 live_fetch 时会对缺失项做一次在线抓取。
func (r *articleRepo) FetchArticles(ctx context.Context, urls []string) ([]*biz.Article, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT "Url" AS url, COALESCE("ArticleText", '') AS text FROM polls WHERE "Url" IN (?)`, urls)
	if err != nil {
		return nil, err
	}
	query = r.data.db.Rebind(query)

	var articles []*biz.Article
	if err := r.data.db.SelectContext(ctx, &articles, query, args...); err != nil {
		return nil, err
	}

	if r.liveFetch {
		articles = r.fillMissing(ctx, urls, articles)
	}
	return articles, nil
}

// fillMissing 对库中没有正文的 URL 在线抓取可读正文，尽力而为
func (r *articleRepo) fillMissing(ctx context.Context, urls []string, articles []*biz.Article) []*biz.Article {
	byURL := make(map[string]*biz.Article, len(articles))
	for _, a := range articles {
		byURL[a.URL] = a
	}

	for _, u := range urls {
		if a, ok := byURL[u]; ok && a.Text != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		text, err := fetchReadableText(u)
		if err != nil {
			r.log.WithContext(ctx).Debugf("live fetch failed for %s: %v", u, err)
			continue
		}
		if text == "" {
			continue
		}
		if a, ok := byURL[u]; ok {
			a.Text = text
			continue
		}
		articles = append(articles, &biz.Article{URL: u, Text: text})
	}
	return articles
}

func fetchReadableText(url string) (string, error) {
	article, err := readability.FromURL(url, liveFetchTimeout)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}
