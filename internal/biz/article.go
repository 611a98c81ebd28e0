package biz

import (
	"context"
	"net/url"
)

// Article 调查来源页面的全文，URL 与 Poll 的来源链接对齐
type Article struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// ArticleRepo 按 URL 批量取回已抓取的文章正文。
// 库中没有对应记录的 URL 直接省略，不算错误。
type ArticleRepo interface {
	FetchArticles(ctx context.Context, urls []string) ([]*Article, error)
}

// ValidArticleURL 过滤占位链接：只接受带主机名的绝对 http/https 地址
func ValidArticleURL(raw string) bool {
	if raw == "" || raw == "#" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
