package biz

import (
	"context"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
)

type mockMetricsRepo struct {
	total     int
	countries []CountRow
	calls     int
}

func (m *mockMetricsRepo) TotalPolls(ctx context.Context) (int, error) {
	m.calls++
	return m.total, nil
}

func (m *mockMetricsRepo) TopCountries(ctx context.Context, limit int) ([]CountRow, error) {
	if limit != metricsTopLimit {
		return nil, context.Canceled
	}
	return m.countries, nil
}

func (m *mockMetricsRepo) TopDomains(ctx context.Context, limit int) ([]CountRow, error) {
	return []CountRow{{Name: "example.com", Count: 10}}, nil
}

func (m *mockMetricsRepo) TopLanguages(ctx context.Context, limit int) ([]CountRow, error) {
	return []CountRow{{Name: "English", Count: 7}}, nil
}

func TestMetricsGetCached(t *testing.T) {
	repo := &mockMetricsRepo{
		total: 12345,
		countries: []CountRow{
			{Name: "United States", Count: 500},
			{Name: "Germany", Count: 300},
		},
	}
	uc := NewMetricsUseCase(repo, log.DefaultLogger)
	ctx := context.Background()

	m, err := uc.Get(ctx, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalPolls == nil || m.TotalPolls.YValue[0] != 12345 {
		t.Errorf("unexpected total polls chart: %+v", m.TotalPolls)
	}
	if m.CountriesData.XValue[0] != "United States" || m.CountriesData.YValue[1] != 300 {
		t.Errorf("unexpected countries chart: %+v", m.CountriesData)
	}
	if m.TotalPolls.ChartType != "bar" {
		t.Errorf("ChartType = %q", m.TotalPolls.ChartType)
	}

	// TTL 内的第二次读取命中缓存
	if _, err := uc.Get(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls != 1 {
		t.Errorf("expected 1 compute, got %d", repo.calls)
	}

	// refresh 强制穿透缓存
	if _, err := uc.Get(ctx, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.calls != 2 {
		t.Errorf("expected refresh to recompute, got %d calls", repo.calls)
	}
}
