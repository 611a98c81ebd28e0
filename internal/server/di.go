package server

import (
	"github.com/google/wire"

	"github.com/iWorld-y/poll_insight/internal/biz"
	"github.com/iWorld-y/poll_insight/internal/data"
	"github.com/iWorld-y/poll_insight/internal/llm"
	"github.com/iWorld-y/poll_insight/internal/service"
)

// ProviderSet 服务的依赖注入 Provider 集合
var ProviderSet = wire.NewSet(
	// Server providers
	NewHTTPServer,

	// Data providers
	data.NewData,
	data.NewPollRepo,
	data.NewArticleRepo,
	data.NewMetricsRepo,
	data.NewSearchFallback,

	// LLM providers
	llm.NewRegistry,
	llm.NewRefiner,
	wire.Bind(new(biz.GeneratorFactory), new(*llm.Registry)),

	// UseCase providers
	biz.NewPollUseCase,
	biz.NewMetricsUseCase,
	biz.NewReportUseCase,

	// Service providers
	service.NewInsightService,
)
