package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
)

// SeriesCache 以 JSON 字符串保存价格序列，实现 market.SeriesCache
type SeriesCache struct {
	rdb redis.Cmdable
}

// NewSeriesCache creates a SeriesCache backed by the given Client.
func NewSeriesCache(c *Client) *SeriesCache {
	return &SeriesCache{rdb: c.Underlying()}
}

// cachedPoint 缺失价格编码为 null（JSON 不支持 NaN）
type cachedPoint struct {
	Date  string   `json:"d"`
	Price *float64 `json:"p"`
}

type cachedSeries struct {
	Symbol string        `json:"symbol"`
	Points []cachedPoint `json:"points"`
}

// GetSeries implements market.SeriesCache
func (c *SeriesCache) GetSeries(ctx context.Context, key string) (*market.PriceSeries, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, market.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return decodeSeries(data)
}

// SetSeries implements market.SeriesCache
func (c *SeriesCache) SetSeries(ctx context.Context, key string, series *market.PriceSeries, ttl time.Duration) error {
	data, err := encodeSeries(series)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func encodeSeries(s *market.PriceSeries) ([]byte, error) {
	points := s.Points()
	cs := cachedSeries{
		Symbol: s.Symbol(),
		Points: make([]cachedPoint, len(points)),
	}
	for i, p := range points {
		cs.Points[i].Date = p.Time.Format(market.DateLayout)
		if !p.Missing() {
			price := p.Price
			cs.Points[i].Price = &price
		}
	}

	data, err := json.Marshal(cs)
	if err != nil {
		return nil, fmt.Errorf("redis: encode %s: %w", s.Symbol(), err)
	}
	return data, nil
}

func decodeSeries(data []byte) (*market.PriceSeries, error) {
	var cs cachedSeries
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("redis: decode series: %w", err)
	}

	points := make([]market.Point, len(cs.Points))
	for i, cp := range cs.Points {
		t, err := time.Parse(market.DateLayout, cp.Date)
		if err != nil {
			return nil, fmt.Errorf("redis: decode %s: %w", cs.Symbol, err)
		}
		points[i] = market.Point{Time: t, Price: math.NaN()}
		if cp.Price != nil {
			points[i].Price = *cp.Price
		}
	}
	return market.NewPriceSeries(cs.Symbol, points), nil
}

var _ market.SeriesCache = (*SeriesCache)(nil)
