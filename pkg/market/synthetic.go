package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/stats"
)

// SyntheticConfig 合成数据参数
// 价差 log(A) - log(B) 服从离散 OU：s[t] = s[t-1] + Mu*(Theta - s[t-1]) + NoiseStd*ε
type SyntheticConfig struct {
	Start      time.Time
	End        time.Time
	Mu         float64
	Theta      float64
	NoiseStd   float64
	BasePrice  float64 // B 腿起始价格
	Volatility float64 // B 腿日对数收益标准差
	Seed       int64
}

// SyntheticSource 为配置的品种对生成确定性的价格路径
// 同一个 seed 与品种对总是得到相同的数据
type SyntheticSource struct {
	cfg   SyntheticConfig
	pairs [][2]string

	once  sync.Once
	paths map[string][]Point
}

// NewSyntheticSource 创建合成数据源，pairs 为 [A, B] 品种对
func NewSyntheticSource(cfg SyntheticConfig, pairs [][2]string) *SyntheticSource {
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	return &SyntheticSource{
		cfg:   cfg,
		pairs: pairs,
	}
}

// Name implements Source
func (s *SyntheticSource) Name() string {
	return "synthetic"
}

// Fetch implements Source
func (s *SyntheticSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*PriceSeries, error) {
	s.once.Do(s.generate)

	points, ok := s.paths[symbol]
	if !ok {
		return nil, fmt.Errorf("synthetic %s: %w", symbol, ErrNotFound)
	}

	series, err := finish(symbol, points, start, end)
	if err != nil {
		return nil, fmt.Errorf("synthetic %s: %w", symbol, err)
	}
	return series, nil
}

func (s *SyntheticSource) generate() {
	s.paths = make(map[string][]Point)
	days := businessDays(s.cfg.Start, s.cfg.End)
	if len(days) == 0 {
		return
	}

	for _, pair := range s.pairs {
		seed := pairSeed(s.cfg.Seed, pair)

		spread := stats.NewAR1FromOU(s.cfg.Mu, s.cfg.Theta, s.cfg.NoiseStd, s.cfg.Theta).Generate(len(days), seed)

		// B 腿：几何随机游走，使用独立的随机源
		rng := rand.New(rand.NewSource(seed + 1))
		logB := math.Log(s.cfg.BasePrice)

		legA := make([]Point, len(days))
		legB := make([]Point, len(days))
		for i, day := range days {
			if i > 0 {
				logB += s.cfg.Volatility * rng.NormFloat64()
			}
			legB[i] = Point{Time: day, Price: math.Exp(logB)}
			legA[i] = Point{Time: day, Price: math.Exp(logB + spread[i])}
		}

		s.paths[pair[0]] = legA
		s.paths[pair[1]] = legB
	}
}

func pairSeed(seed int64, pair [2]string) int64 {
	h := fnv.New64a()
	h.Write([]byte(pair[0] + "/" + pair[1]))
	return seed ^ int64(h.Sum64()>>1)
}

func businessDays(start, end time.Time) []time.Time {
	start = normalizeDate(start)
	end = normalizeDate(end)

	days := make([]time.Time, 0, 256)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		days = append(days, d)
	}
	return days
}
