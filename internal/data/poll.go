package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/poll_insight/internal/biz"
)

type pollRepo struct {
	data *Data
	log  *log.Helper
}

func NewPollRepo(data *Data, logger log.Logger) biz.PollRepo {
	return &pollRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// pollRow pollsearcher 检索过程返回的一行
type pollRow struct {
	ID            string          `db:"id"`
	Title         sql.NullString  `db:"title"`
	URL           sql.NullString  `db:"url"`
	SeenDate      sql.NullString  `db:"seendate"`
	ChartData     []byte          `db:"chartdata"`
	SourceCountry sql.NullString  `db:"sourcecountry"`
	Score         sql.NullFloat64 `db:"score"`
}

// SearchPolls 委托存储端的 pollsearcher 完成排序，结果保持存储端给出的顺序
func (r *pollRepo) SearchPolls(ctx context.Context, query string, limit int) ([]*biz.Poll, error) {
	var rows []pollRow
	err := r.data.db.SelectContext(ctx, &rows,
		`SELECT id::text AS id, title, url, seendate::text AS seendate, chartdata, sourcecountry, score
		 FROM pollsearcher($1, $2)`, query, limit)
	if err != nil {
		return nil, err
	}

	polls := make([]*biz.Poll, 0, len(rows))
	for _, row := range rows {
		chart, err := biz.ParseChartPayload(row.ChartData)
		if err != nil {
			// 解析失败退化为空 payload，不中断整个请求
			r.log.WithContext(ctx).Warnf("failed to parse chartdata for poll id %s: %v", row.ID, err)
			chart = biz.ChartPayload{}
		}
		polls = append(polls, &biz.Poll{
			ID:            row.ID,
			Title:         row.Title.String,
			URL:           row.URL.String,
			SeenDate:      row.SeenDate.String,
			ChartData:     chart,
			SourceCountry: row.SourceCountry.String,
			Score:         row.Score.Float64,
		})
	}
	return polls, nil
}

// detailRow surveyembeddings 表的一行，列名区分大小写
type detailRow struct {
	ID            string         `db:"id"`
	Title         sql.NullString `db:"Title"`
	URL           sql.NullString `db:"Url"`
	SeenDate      sql.NullString `db:"Seendate"`
	ChartData     []byte         `db:"ChartData"`
	SourceCountry sql.NullString `db:"SourceCountry"`
	Language      sql.NullString `db:"Language"`
	Domain        sql.NullString `db:"Domain"`
}

// GetPoll 返回扁平化的单条记录，仅统计已生成向量的行
func (r *pollRepo) GetPoll(ctx context.Context, id string) (*biz.PollDetail, error) {
	var row detailRow
	err := r.data.db.GetContext(ctx, &row,
		`SELECT id::text AS id, "Title", "Url", "Seendate"::text AS "Seendate",
		        "ChartData", "SourceCountry", "Language", "Domain"
		 FROM surveyembeddings
		 WHERE id = $1 AND embedding IS NOT NULL`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kerrors.NotFound("POLL_NOT_FOUND", "poll not found")
		}
		return nil, err
	}

	chart, err := biz.ParseChartPayload(row.ChartData)
	if err != nil {
		r.log.WithContext(ctx).Warnf("failed to parse ChartData for poll id %s: %v", id, err)
		chart = biz.ChartPayload{}
	}

	title := chart.Title
	if title == "" {
		title = row.Title.String
	}
	if title == "" {
		title = "Untitled Poll"
	}
	source := chart.SurveySource
	if source == "" {
		source = "Unknown Source"
	}
	u := row.URL.String
	if u == "" {
		u = "#"
	}
	seen := row.SeenDate.String
	if seen == "" {
		seen = time.Now().Format(time.RFC3339)
	}
	chartType := chart.ChartType
	if chartType == "" {
		chartType = "bar"
	}
	if chart.XValue == nil {
		chart.XValue = []string{}
	}
	if chart.YValue == nil {
		chart.YValue = []float64{}
	}

	return &biz.PollDetail{
		ID:            row.ID,
		Title:         title,
		XValue:        chart.XValue,
		YValue:        chart.YValue,
		XLabel:        chart.XLabel,
		YLabel:        chart.YLabel,
		Explanation:   chart.Explanation,
		SurveySource:  source,
		SurveyYear:    string(chart.SurveyYear),
		ChartType:     chartType,
		URL:           u,
		SourceCountry: row.SourceCountry.String,
		SeenDate:      seen,
	}, nil
}

// RandomPolls 调用存储端的随机采样过程，返回指定日期的样本
func (r *pollRepo) RandomPolls(ctx context.Context, date string) ([]*biz.Poll, error) {
	var rows []struct {
		ChartData []byte `db:"chart_data_result"`
	}
	err := r.data.db.SelectContext(ctx, &rows,
		`SELECT chart_data_result FROM get_random_charts($1)`, date)
	if err != nil {
		return nil, err
	}

	now := time.Now().Format(time.RFC3339)
	polls := make([]*biz.Poll, 0, len(rows))
	for _, row := range rows {
		chart, err := biz.ParseChartPayload(row.ChartData)
		if err != nil {
			chart = biz.ChartPayload{}
		}
		title := chart.Title
		if title == "" {
			title = "Untitled Poll"
		}
		country := chart.SurveyCustomer
		if country == "" {
			country = "Unknown"
		}
		polls = append(polls, &biz.Poll{
			Title:         title,
			URL:           "#",
			SeenDate:      now,
			ChartData:     chart,
			SourceCountry: country,
		})
	}
	return polls, nil
}
