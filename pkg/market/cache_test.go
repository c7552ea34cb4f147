package market

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memoryCache struct {
	data    map[string]*PriceSeries
	failGet bool
}

func (m *memoryCache) GetSeries(ctx context.Context, key string) (*PriceSeries, error) {
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	s, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return s, nil
}

func (m *memoryCache) SetSeries(ctx context.Context, key string, series *PriceSeries, ttl time.Duration) error {
	m.data[key] = series
	return nil
}

type countingSource struct {
	calls int
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	c.calls++
	return NewPriceSeries(symbol, []Point{{Time: start, Price: 1}}), nil
}

func TestCachedSource_ReadThrough(t *testing.T) {
	next := &countingSource{}
	cache := &memoryCache{data: map[string]*PriceSeries{}}
	src := NewCachedSource(next, cache, time.Hour)

	start, end := day("2024-01-01"), day("2024-01-31")
	for i := 0; i < 3; i++ {
		if _, err := src.Fetch(context.Background(), "GLD", start, end); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}

	if next.calls != 1 {
		t.Errorf("underlying fetches = %d, want 1", next.calls)
	}
	if _, ok := cache.data[CacheKey("counting", "GLD", start, end)]; !ok {
		t.Error("series was not written to cache")
	}
}

func TestCachedSource_CacheErrorFallsThrough(t *testing.T) {
	next := &countingSource{}
	src := NewCachedSource(next, &memoryCache{data: map[string]*PriceSeries{}, failGet: true}, time.Hour)

	series, err := src.Fetch(context.Background(), "GLD", day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if series.Len() != 1 || next.calls != 1 {
		t.Errorf("expected fallback fetch, got len=%d calls=%d", series.Len(), next.calls)
	}
}
