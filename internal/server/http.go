package server

import (
	"embed"
	nethttp "net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/poll_insight/internal/conf"
	"github.com/iWorld-y/poll_insight/internal/service"
)

//go:embed assets/*
var assets embed.FS

func NewHTTPServer(c *conf.Server, s *service.InsightService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != "" {
		if d, err := time.ParseDuration(c.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}

	srv := http.NewServer(opts...)

	srv.HandleFunc("/api/report", s.Report)
	srv.HandleFunc("/api/search", s.Search)
	srv.HandlePrefix("/api/poll/", nethttp.HandlerFunc(s.Poll))
	srv.HandleFunc("/api/metrics", s.Metrics)
	srv.HandleFunc("/api/random-polls", s.RandomPolls)

	// 独立图表页面，允许任意来源以 iframe 嵌入
	srv.HandlePrefix("/embed/", nethttp.HandlerFunc(serveEmbedPage))

	return srv
}

func serveEmbedPage(w nethttp.ResponseWriter, r *nethttp.Request) {
	content, err := assets.ReadFile("assets/embed.html")
	if err != nil {
		nethttp.Error(w, "embed page unavailable", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "frame-ancestors 'self' *;")
	w.Write(content)
}
