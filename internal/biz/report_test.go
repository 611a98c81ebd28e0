package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

type mockPollRepo struct {
	mu       sync.Mutex
	byQuery  map[string][]*Poll
	err      error
	searched []string
}

func (m *mockPollRepo) SearchPolls(ctx context.Context, query string, limit int) ([]*Poll, error) {
	m.mu.Lock()
	m.searched = append(m.searched, query)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.byQuery[query], nil
}

func (m *mockPollRepo) GetPoll(ctx context.Context, id string) (*PollDetail, error) {
	return nil, errors.New("not implemented")
}

func (m *mockPollRepo) RandomPolls(ctx context.Context, date string) ([]*Poll, error) {
	return nil, errors.New("not implemented")
}

type mockArticleRepo struct {
	articles []*Article
	err      error
	calls    int
	gotURLs  []string
}

func (m *mockArticleRepo) FetchArticles(ctx context.Context, urls []string) ([]*Article, error) {
	m.calls++
	m.gotURLs = urls
	return m.articles, m.err
}

type mockGenerator struct {
	fn    func(ctx context.Context, system, prompt string) (string, error)
	calls int
}

func (m *mockGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.calls++
	return m.fn(ctx, system, prompt)
}

type mockFactory struct {
	gen *mockGenerator
	err error
}

func (m *mockFactory) Generator(model string) (Generator, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.gen, nil
}

type mockRefiner struct {
	queries []string
	err     error
}

func (m *mockRefiner) Refine(ctx context.Context, question string) ([]string, error) {
	return m.queries, m.err
}

func echoGenerator(text string) *mockGenerator {
	return &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		return text, nil
	}}
}

func newTestReportUseCase(polls PollRepo, articles ArticleRepo, refiner QueryRefiner, factory GeneratorFactory) *ReportUseCase {
	uc := NewReportUseCase(nil, polls, nil, articles, refiner, factory, log.DefaultLogger)
	uc.embedBase = "http://localhost:8000"
	uc.retryBase = 5 * time.Millisecond
	return uc
}

func TestGenerateEmptyQuery(t *testing.T) {
	uc := newTestReportUseCase(&mockPollRepo{}, &mockArticleRepo{}, nil, &mockFactory{gen: echoGenerator("x")})

	if _, err := uc.Generate(context.Background(), "   ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestGenerateNoPolls(t *testing.T) {
	articles := &mockArticleRepo{}
	gen := echoGenerator("should not be called")
	uc := newTestReportUseCase(&mockPollRepo{}, articles, nil, &mockFactory{gen: gen})

	report, err := uc.Generate(context.Background(), "anything", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != noDataReport {
		t.Errorf("expected degraded no-data report, got %q", report)
	}
	if articles.calls != 0 {
		t.Errorf("article repo should not be called, got %d calls", articles.calls)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not be called, got %d calls", gen.calls)
	}
}

func TestGenerateNoValidURLs(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q": {
			{ID: "1", Title: "a", URL: "#"},
			{ID: "2", Title: "b", URL: ""},
			{ID: "3", Title: "c", URL: "relative/path"},
		},
	}}
	articles := &mockArticleRepo{}
	gen := echoGenerator("should not be called")
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})

	report, err := uc.Generate(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != noArticlesReport {
		t.Errorf("expected degraded no-articles report, got %q", report)
	}
	if articles.calls != 0 {
		t.Errorf("article repo should not be called, got %d calls", articles.calls)
	}
	if gen.calls != 0 {
		t.Errorf("generator should not be called, got %d calls", gen.calls)
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	question := "climate change opinions in Europe"
	p1 := &Poll{ID: "p1", Title: "EU climate survey", URL: "https://example.com/p1",
		ChartData: ChartPayload{Title: "Climate concern by country"}}
	p2 := &Poll{ID: "p2", Title: "Energy policy poll", URL: "https://example.com/p2"}
	repo := &mockPollRepo{byQuery: map[string][]*Poll{question: {p1, p2}}}
	articles := &mockArticleRepo{articles: []*Article{
		{URL: "https://example.com/p1", Text: "Most Europeans consider climate change a major threat."},
	}}

	var gotPrompt string
	gen := &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		gotPrompt = prompt
		return "## Findings\n\nConcern is high [1].\n\n[CHART:p1]\n", nil
	}}
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})

	report, err := uc.Generate(context.Background(), question, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(articles.gotURLs) != 2 || articles.gotURLs[0] != "https://example.com/p1" || articles.gotURLs[1] != "https://example.com/p2" {
		t.Errorf("unexpected article URLs: %v", articles.gotURLs)
	}
	if !strings.Contains(gotPrompt, "SOURCE: https://example.com/p1") {
		t.Errorf("prompt missing article source, got:\n%s", gotPrompt)
	}
	if !strings.Contains(gotPrompt, question) {
		t.Errorf("prompt missing the user question")
	}
	if strings.Contains(report, "[CHART:p1]") {
		t.Errorf("placeholder not substituted: %q", report)
	}
	want := `<iframe src="http://localhost:8000/embed/p1" title="Climate concern by country"`
	if !strings.Contains(report, want) {
		t.Errorf("report missing embed iframe %q, got:\n%s", want, report)
	}
	if !strings.Contains(report, "## Findings") {
		t.Errorf("non-placeholder content should be preserved, got:\n%s", report)
	}
}

func TestGenerateRetriesOnRateLimit(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q": {{ID: "1", Title: "t", URL: "https://example.com/a"}},
	}}
	articles := &mockArticleRepo{articles: []*Article{{URL: "https://example.com/a", Text: "body"}}}

	attempts := 0
	gen := &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		attempts++
		if attempts <= 2 {
			return "", fmt.Errorf("upstream: %w", ErrRateLimited)
		}
		return "report text", nil
	}}
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})

	start := time.Now()
	report, err := uc.Generate(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != "report text" {
		t.Errorf("unexpected report %q", report)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	// 线性退避：5ms + 10ms
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("expected linear backoff delays, elapsed only %v", elapsed)
	}
}

func TestGenerateContentFilteredNotRetried(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q": {{ID: "1", Title: "t", URL: "https://example.com/a"}},
	}}
	articles := &mockArticleRepo{}

	gen := &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		return "", ErrContentFiltered
	}}
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})

	_, err := uc.Generate(context.Background(), "q", "")
	if !errors.Is(err, ErrContentFiltered) {
		t.Fatalf("expected ErrContentFiltered, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("safety filter errors must not be retried, got %d calls", gen.calls)
	}
}

func TestGenerateTimeout(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q": {{ID: "1", Title: "t", URL: "https://example.com/a"}},
	}}
	articles := &mockArticleRepo{}

	gen := &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})
	uc.genTimeout = 30 * time.Millisecond

	_, err := uc.Generate(context.Background(), "q", "")
	if !errors.Is(err, ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("timeouts must not be retried, got %d calls", gen.calls)
	}
}

func TestGenerateFactoryError(t *testing.T) {
	uc := newTestReportUseCase(&mockPollRepo{}, &mockArticleRepo{}, nil,
		&mockFactory{err: errors.New("provider not configured")})

	if _, err := uc.Generate(context.Background(), "q", "unknown"); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestGenerateRefinedFanOut(t *testing.T) {
	shared := &Poll{ID: "dup", Title: "shared", URL: "https://example.com/dup"}
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q1": {shared, {ID: "a", Title: "a", URL: "https://example.com/a"}},
		"q2": {shared, {ID: "b", Title: "b", URL: "https://example.com/b"}},
		"q3": {{ID: "c", Title: "c", URL: "https://example.com/c"}},
	}}
	articles := &mockArticleRepo{}
	refiner := &mockRefiner{queries: []string{"q1", "q2", "q3"}}
	uc := newTestReportUseCase(repo, articles, refiner, &mockFactory{gen: echoGenerator("done")})

	if _, err := uc.Generate(context.Background(), "original", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.searched) != 3 {
		t.Fatalf("expected 3 searches, got %v", repo.searched)
	}
	seen := make(map[string]bool)
	for _, q := range repo.searched {
		seen[q] = true
	}
	for _, q := range []string{"q1", "q2", "q3"} {
		if !seen[q] {
			t.Errorf("refined query %q was not searched", q)
		}
	}
	// 合并去重后 dup 只出现一次，顺序按检索式顺序
	want := []string{"https://example.com/dup", "https://example.com/a", "https://example.com/b", "https://example.com/c"}
	if len(articles.gotURLs) != len(want) {
		t.Fatalf("expected %d deduped URLs, got %v", len(want), articles.gotURLs)
	}
	for i, u := range want {
		if articles.gotURLs[i] != u {
			t.Errorf("URL[%d] = %q, want %q", i, articles.gotURLs[i], u)
		}
	}
}

func TestGenerateRefinerFailureFallsBack(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"original question": {{ID: "1", Title: "t", URL: "https://example.com/a"}},
	}}
	refiner := &mockRefiner{err: errors.New("model misbehaved")}
	uc := newTestReportUseCase(repo, &mockArticleRepo{}, refiner, &mockFactory{gen: echoGenerator("ok")})

	if _, err := uc.Generate(context.Background(), "original question", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.searched) != 1 || repo.searched[0] != "original question" {
		t.Errorf("expected fallback to the raw question, searched %v", repo.searched)
	}
}

type mockSearcher struct {
	polls []*Poll
	err   error
	calls int
}

func (m *mockSearcher) SearchPolls(ctx context.Context, query string, limit int) ([]*Poll, error) {
	m.calls++
	return m.polls, m.err
}

func TestGenerateSearchFallback(t *testing.T) {
	repo := &mockPollRepo{err: errors.New("db down")}
	fallback := &mockSearcher{polls: []*Poll{{ID: "1", Title: "t", URL: "https://example.com/a"}}}
	uc := newTestReportUseCase(repo, &mockArticleRepo{}, nil, &mockFactory{gen: echoGenerator("ok")})
	uc.fallback = fallback

	report, err := uc.Generate(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != "ok" {
		t.Errorf("unexpected report %q", report)
	}
	if fallback.calls != 1 {
		t.Errorf("expected the fallback searcher to be used once, got %d", fallback.calls)
	}
}

func TestGenerateArticleFetchFailureDegrades(t *testing.T) {
	repo := &mockPollRepo{byQuery: map[string][]*Poll{
		"q": {{ID: "1", Title: "t", URL: "https://example.com/a"}},
	}}
	articles := &mockArticleRepo{err: errors.New("polls table unavailable")}

	var gotPrompt string
	gen := &mockGenerator{fn: func(ctx context.Context, system, prompt string) (string, error) {
		gotPrompt = prompt
		return "metadata-only report", nil
	}}
	uc := newTestReportUseCase(repo, articles, nil, &mockFactory{gen: gen})

	report, err := uc.Generate(context.Background(), "q", "")
	if err != nil {
		t.Fatalf("article failures must not fail the request: %v", err)
	}
	if report != "metadata-only report" {
		t.Errorf("unexpected report %q", report)
	}
	if !strings.Contains(gotPrompt, "WARNING: No article text could be retrieved") {
		t.Errorf("prompt should flag missing article text, got:\n%s", gotPrompt)
	}
}

func TestCollectArticleURLs(t *testing.T) {
	polls := []*Poll{
		{ID: "1", URL: "https://example.com/a"},
		{ID: "2", URL: "#"},
		{ID: "3", URL: ""},
		{ID: "4", URL: "ftp://example.com/x"},
		{ID: "5", URL: "https://example.com/a"},
		{ID: "6", URL: "http://example.com/b"},
	}
	urls := collectArticleURLs(polls)
	want := []string{"https://example.com/a", "http://example.com/b"}
	if len(urls) != len(want) {
		t.Fatalf("got %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestSubstituteChartEmbeds(t *testing.T) {
	polls := []*Poll{
		{ID: "42", Title: "Fallback title", ChartData: ChartPayload{Title: "Chart title"}},
		{ID: "7", Title: "Metadata title"},
	}

	text := "Before\n[CHART:42]\nMiddle\n[CHART: 7 ]\nAfter"
	out := SubstituteChartEmbeds(text, polls, "http://localhost:8000")

	if strings.Contains(out, "[CHART:") {
		t.Fatalf("placeholders left unsubstituted:\n%s", out)
	}
	if !strings.Contains(out, `src="http://localhost:8000/embed/42" title="Chart title"`) {
		t.Errorf("chart title should win over poll title, got:\n%s", out)
	}
	if !strings.Contains(out, `src="http://localhost:8000/embed/7" title="Metadata title"`) {
		t.Errorf("poll title should be used when chart data has none, got:\n%s", out)
	}
	if !strings.Contains(out, "Before") || !strings.Contains(out, "Middle") || !strings.Contains(out, "After") {
		t.Errorf("surrounding text should be untouched, got:\n%s", out)
	}
}

func TestSubstituteChartEmbedsUnknownID(t *testing.T) {
	out := SubstituteChartEmbeds("[CHART:missing]", nil, "http://localhost:8000")
	if !strings.Contains(out, `src="http://localhost:8000/embed/missing"`) {
		t.Errorf("unknown ids still get a well-formed embed, got %q", out)
	}
	if !strings.Contains(out, `title="`+chartFallbackTitle+`"`) {
		t.Errorf("unknown ids use the fallback title, got %q", out)
	}
}
