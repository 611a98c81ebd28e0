package biz

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	articleCharBudget = 4000
	truncationMarker  = "... [truncated]"
)

const reportSystemPrompt = "You are an intelligent assistant specialized in analyzing survey data " +
	"and related articles to generate comprehensive reports. Follow the user's instructions " +
	"precisely regarding source prioritization, formatting, and citation."

// promptPoll 提示词里的调查元数据视图
type promptPoll struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	URL         string          `json:"url"`
	ChartData   promptChartData `json:"chartData"`
	Explanation string          `json:"explanation"`
	Source      string          `json:"source"`
	Year        string          `json:"year"`
	Country     string          `json:"country"`
}

type promptChartData struct {
	XValues []string  `json:"xValues"`
	YValues []float64 `json:"yValues"`
	XLabel  string    `json:"xLabel"`
	YLabel  string    `json:"yLabel"`
}

// BuildReportPrompt 组装生成模型的 system 与 user 两段提示词。
// 文章正文是主要依据，调查元数据作为补充以结构化 JSON 附在后面。
func BuildReportPrompt(query string, articles []*Article, polls []*Poll) (string, string) {
	articleContent := buildArticleSection(articles)
	pollJSON := buildPollMetadata(polls)

	var b strings.Builder
	fmt.Fprintf(&b, "User question: %q\n\n", query)
	b.WriteString("I need you to generate a report that answers this question primarily based on the ARTICLE TEXT below.\n")
	b.WriteString("The poll metadata is secondary and should only be used to supplement your analysis.\n\n")

	if articleContent != "" {
		b.WriteString("PRIMARY SOURCE - FULL ARTICLE TEXTS:\n")
		b.WriteString(articleContent)
	} else {
		b.WriteString("WARNING: No article text could be retrieved. Using only metadata.")
	}
	b.WriteString("\n\nSECONDARY SOURCE - POLL METADATA (ONLY USE IF NEEDED):\n")
	b.WriteString(pollJSON)

	b.WriteString(`

Your report MUST:
1. PRIMARILY use information from the ARTICLE TEXTS
2. Only reference the poll metadata when helpful. But when you are using a poll make sure that you explain it well and in detail.
3. Format your response in markdown with clear headers and sections
4. Use numbered citation format - when referencing content from articles, add a numbered citation like [1], [2], etc.
5. Include a "References" section at the end of the report with a numbered list of all sources used
6. Wherever a specific poll's chart should illustrate the narrative, insert a placeholder of the form [CHART:<poll id>] on its own line, using the "id" field from the poll metadata
7. Be comprehensive but focused on answering the specific question
8. Clearly state if the provided information is insufficient to fully answer the question

Example format for citations:
"According to a recent survey, 64% of Americans support this policy [1]."

Then at the end have:
"## References
1. [Source Title or URL](actual URL)
2. [Another Source](actual URL)"

Read the articles carefully and prioritize this content over the metadata. Do not generate information not contained in the sources.
`)

	return reportSystemPrompt, b.String()
}

// buildArticleSection 拼接文章正文，每篇标注来源并截断到固定字符预算
func buildArticleSection(articles []*Article) string {
	var b strings.Builder
	for _, a := range articles {
		text := truncateArticleText(a.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "SOURCE: %s\n\n%s\n\n---\n\n", a.URL, text)
	}
	return b.String()
}

// truncateArticleText 把超出预算的正文截断为前 4000 个字符加标记。
// 正文可能是任意语言，按 rune 计数，不能在多字节字符中间切断。
func truncateArticleText(text string) string {
	if utf8.RuneCountInString(text) <= articleCharBudget {
		return text
	}
	runes := []rune(text)
	return string(runes[:articleCharBudget]) + truncationMarker
}

func buildPollMetadata(polls []*Poll) string {
	data := make([]promptPoll, 0, len(polls))
	for _, p := range polls {
		title := p.Title
		if title == "" {
			title = p.ChartData.Title
		}
		if title == "" {
			title = "Untitled Poll"
		}
		u := p.URL
		if u == "" {
			u = "#"
		}
		data = append(data, promptPoll{
			ID:    p.ID,
			Title: title,
			URL:   u,
			ChartData: promptChartData{
				XValues: p.ChartData.XValue,
				YValues: p.ChartData.YValue,
				XLabel:  p.ChartData.XLabel,
				YLabel:  p.ChartData.YLabel,
			},
			Explanation: p.ChartData.Explanation,
			Source:      p.ChartData.SurveySource,
			Year:        string(p.ChartData.SurveyYear),
			Country:     p.SourceCountry,
		})
	}

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
