//go:build wireinject
// +build wireinject

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/iWorld-y/poll_insight/internal/conf"
	"github.com/iWorld-y/poll_insight/internal/server"
)

// initApp 组装并初始化应用
func initApp(*conf.Server, *conf.Data, *conf.LLM, *conf.Report, *conf.Search, *conf.Article, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(server.ProviderSet, newApp))
}
