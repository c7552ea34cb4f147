package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrCacheMiss is returned by a SeriesCache when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// SeriesCache stores fetched series by key
type SeriesCache interface {
	GetSeries(ctx context.Context, key string) (*PriceSeries, error)
	SetSeries(ctx context.Context, key string, series *PriceSeries, ttl time.Duration) error
}

// CachedSource wraps a Source with a read-through cache
// Cache failures are logged and never fail a fetch.
type CachedSource struct {
	next  Source
	cache SeriesCache
	ttl   time.Duration
}

// NewCachedSource creates a read-through cache in front of next
func NewCachedSource(next Source, cache SeriesCache, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

// Name implements Source
func (s *CachedSource) Name() string {
	return s.next.Name() + "+cache"
}

// CacheKey builds the cache key for one fetch
func CacheKey(source, symbol string, start, end time.Time) string {
	return fmt.Sprintf("series:%s:%s:%s:%s", source, symbol, start.Format(DateLayout), end.Format(DateLayout))
}

// Fetch implements Source
func (s *CachedSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	key := CacheKey(s.next.Name(), symbol, start, end)

	series, err := s.cache.GetSeries(ctx, key)
	if err == nil {
		log.Printf("[Cache] Hit %s (%d points)", key, series.Len())
		return series, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Printf("[Cache] Warning: read %s failed: %v", key, err)
	}

	series, err = s.next.Fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetSeries(ctx, key, series, s.ttl); err != nil {
		log.Printf("[Cache] Warning: write %s failed: %v", key, err)
	}
	return series, nil
}
