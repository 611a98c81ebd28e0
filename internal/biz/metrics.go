package biz

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/poll_insight/pkg/cache"
)

// CountRow 一条分组计数
type CountRow struct {
	Name  string
	Count int
}

// MetricsRepo 数据库侧的聚合统计
type MetricsRepo interface {
	TotalPolls(ctx context.Context) (int, error)
	TopCountries(ctx context.Context, limit int) ([]CountRow, error)
	TopDomains(ctx context.Context, limit int) ([]CountRow, error)
	TopLanguages(ctx context.Context, limit int) ([]CountRow, error)
}

// SurveyChart 指标接口返回的图表形数据，字段命名与前端消费的扁平视图一致
type SurveyChart struct {
	Title        string    `json:"survey_Title"`
	XValue       []string  `json:"survey_XValue"`
	YValue       []float64 `json:"survey_YValue"`
	XLabel       string    `json:"survey_XLabel"`
	YLabel       string    `json:"survey_YLabel"`
	Explanation  string    `json:"survey_Explanation"`
	SurveySource string    `json:"survey_SurveySource"`
	SurveyYear   string    `json:"survey_SurveyYear"`
	ChartType    string    `json:"survey_ChartType"`
}

// Metrics 指标接口的完整响应
type Metrics struct {
	TotalPolls    *SurveyChart `json:"totalPolls"`
	CountriesData *SurveyChart `json:"countriesData"`
	DomainsData   *SurveyChart `json:"domainsData"`
	LanguagesData *SurveyChart `json:"languagesData"`
}

const (
	metricsTTL      = 24 * time.Hour
	metricsTopLimit = 20
)

// MetricsUseCase 聚合指标，带 24 小时读穿缓存，refresh 可强制重建
type MetricsUseCase struct {
	repo  MetricsRepo
	cache *cache.TTL[*Metrics]
	log   *log.Helper
}

func NewMetricsUseCase(repo MetricsRepo, logger log.Logger) *MetricsUseCase {
	return &MetricsUseCase{
		repo:  repo,
		cache: cache.NewTTL[*Metrics](metricsTTL),
		log:   log.NewHelper(logger),
	}
}

func (uc *MetricsUseCase) Get(ctx context.Context, refresh bool) (*Metrics, error) {
	return uc.cache.Get(ctx, refresh, uc.compute)
}

func (uc *MetricsUseCase) compute(ctx context.Context) (*Metrics, error) {
	uc.log.WithContext(ctx).Info("computing fresh metrics data")
	year := strconv.Itoa(time.Now().Year())

	total, err := uc.repo.TotalPolls(ctx)
	if err != nil {
		return nil, err
	}
	countries, err := uc.repo.TopCountries(ctx, metricsTopLimit)
	if err != nil {
		return nil, err
	}
	domains, err := uc.repo.TopDomains(ctx, metricsTopLimit)
	if err != nil {
		return nil, err
	}
	languages, err := uc.repo.TopLanguages(ctx, metricsTopLimit)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		TotalPolls: &SurveyChart{
			Title:        "Total Number of Polls",
			XValue:       []string{"Total Polls"},
			YValue:       []float64{float64(total)},
			XLabel:       "Metric",
			YLabel:       "Count",
			Explanation:  "Total number of polls with embeddings in the database",
			SurveySource: "Database Analytics",
			SurveyYear:   year,
			ChartType:    "bar",
		},
		CountriesData: countChart("Top 20 Countries by Poll Count", "Country",
			"Distribution of polls by country of origin, showing the top 20 countries", year, countries),
		DomainsData: countChart("Top 20 Domains by Poll Count", "Domain",
			"Distribution of polls by domain, showing the top 20 domains", year, domains),
		LanguagesData: countChart("Top 20 Languages by Poll Count", "Language",
			"Distribution of polls by language, showing the top 20 languages", year, languages),
	}, nil
}

func countChart(title, xLabel, explanation, year string, rows []CountRow) *SurveyChart {
	chart := &SurveyChart{
		Title:        title,
		XValue:       make([]string, 0, len(rows)),
		YValue:       make([]float64, 0, len(rows)),
		XLabel:       xLabel,
		YLabel:       "Number of Polls",
		Explanation:  explanation,
		SurveySource: "Database Analytics",
		SurveyYear:   year,
		ChartType:    "bar",
	}
	for _, row := range rows {
		chart.XValue = append(chart.XValue, row.Name)
		chart.YValue = append(chart.YValue, float64(row.Count))
	}
	return chart
}
