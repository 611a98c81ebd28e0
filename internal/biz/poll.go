package biz

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
)

// FlexString 兼容历史数据里字符串与数字混用的字段（如 SurveyYear）
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// ChartPayload 轮询记录附带的图表数据，字段名与入库的序列化格式一致
type ChartPayload struct {
	DataAssessment string     `json:"DataAssessment,omitempty"`
	XValue         []string   `json:"XValue"`
	XLabel         string     `json:"XLabel"`
	YValue         []float64  `json:"YValue"`
	YLabel         string     `json:"YLabel"`
	Title          string     `json:"Title"`
	Explanation    string     `json:"Explanation"`
	SurveySource   string     `json:"SurveySource"`
	SurveyCustomer string     `json:"SurveyCustomer"`
	SurveyYear     FlexString `json:"SurveyYear"`
	ChartType      string     `json:"ChartType,omitempty"`
}

// ParseChartPayload 解析入库的图表数据。payload 可能以 JSON 字符串形式持久化，
// 解析失败时返回错误，调用方应当回退到空 payload 而不是中断请求。
func ParseChartPayload(raw []byte) (ChartPayload, error) {
	var p ChartPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return ChartPayload{}, err
	}
	return p, nil
}

// Poll 一条含图表元数据的调查记录
type Poll struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	URL           string       `json:"url"`
	SeenDate      string       `json:"seendate"`
	ChartData     ChartPayload `json:"chartdata"`
	SourceCountry string       `json:"sourcecountry"`
	Score         float64      `json:"score"`
}

// PollDetail 扁平化的单条记录视图，供 poll 详情与 embed 页面消费
type PollDetail struct {
	ID            string    `json:"survey_Id"`
	Title         string    `json:"survey_Title"`
	XValue        []string  `json:"survey_XValue"`
	YValue        []float64 `json:"survey_YValue"`
	XLabel        string    `json:"survey_XLabel"`
	YLabel        string    `json:"survey_YLabel"`
	Explanation   string    `json:"survey_Explanation"`
	SurveySource  string    `json:"survey_SurveySource"`
	SurveyYear    string    `json:"survey_SurveyYear"`
	ChartType     string    `json:"survey_ChartType"`
	URL           string    `json:"survey_URL"`
	SourceCountry string    `json:"survey_SourceCountry"`
	SeenDate      string    `json:"survey_SeenDate"`
}

// PollRepo 调查数据读取接口。排序完全由存储端的检索过程决定。
type PollRepo interface {
	SearchPolls(ctx context.Context, query string, limit int) ([]*Poll, error)
	GetPoll(ctx context.Context, id string) (*PollDetail, error)
	RandomPolls(ctx context.Context, date string) ([]*Poll, error)
}

// DedupePolls 按 id 去重，保留首次出现的记录，顺序不变
func DedupePolls(polls []*Poll) []*Poll {
	seen := make(map[string]struct{}, len(polls))
	out := make([]*Poll, 0, len(polls))
	for _, p := range polls {
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

type PollUseCase struct {
	repo PollRepo
	log  *log.Helper
}

func NewPollUseCase(repo PollRepo, logger log.Logger) *PollUseCase {
	return &PollUseCase{repo: repo, log: log.NewHelper(logger)}
}

func (uc *PollUseCase) Search(ctx context.Context, query string, limit int) ([]*Poll, error) {
	if limit <= 0 {
		limit = 100
	}
	return uc.repo.SearchPolls(ctx, query, limit)
}

func (uc *PollUseCase) Get(ctx context.Context, id string) (*PollDetail, error) {
	return uc.repo.GetPoll(ctx, id)
}

// Random 返回昨日入库记录的随机样本
func (uc *PollUseCase) Random(ctx context.Context, yesterday string) ([]*Poll, error) {
	return uc.repo.RandomPolls(ctx, yesterday)
}
