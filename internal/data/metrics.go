package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/poll_insight/internal/biz"
)

type metricsRepo struct {
	data *Data
	log  *log.Helper
}

func NewMetricsRepo(data *Data, logger log.Logger) biz.MetricsRepo {
	return &metricsRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *metricsRepo) TotalPolls(ctx context.Context) (int, error) {
	var count int
	err := r.data.db.GetContext(ctx, &count,
		`SELECT count(*) FROM surveyembeddings WHERE embedding IS NOT NULL`)
	return count, err
}

func (r *metricsRepo) TopCountries(ctx context.Context, limit int) ([]biz.CountRow, error) {
	return r.topCounts(ctx, "SourceCountry", limit)
}

func (r *metricsRepo) TopDomains(ctx context.Context, limit int) ([]biz.CountRow, error) {
	return r.topCounts(ctx, "Domain", limit)
}

func (r *metricsRepo) TopLanguages(ctx context.Context, limit int) ([]biz.CountRow, error) {
	return r.topCounts(ctx, "Language", limit)
}

// countRow 分组计数查询返回的一行
type countRow struct {
	Name  string `db:"name"`
	Count int    `db:"observation_count"`
}

// topCounts 按指定列分组计数。列名来自固定的白名单调用点，直接拼接。
func (r *metricsRepo) topCounts(ctx context.Context, column string, limit int) ([]biz.CountRow, error) {
	query := `SELECT "` + column + `" AS name, COUNT(*) AS observation_count
		FROM surveyembeddings
		WHERE "` + column + `" != ''
		GROUP BY "` + column + `"
		ORDER BY observation_count DESC
		LIMIT $1`

	var rows []countRow
	if err := r.data.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, err
	}
	return toCountRows(rows), nil
}

func toCountRows(rows []countRow) []biz.CountRow {
	out := make([]biz.CountRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, biz.CountRow{Name: row.Name, Count: row.Count})
	}
	return out
}
