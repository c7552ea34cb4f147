package spread

import (
	"fmt"
	"math"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/stats"
)

// Summary spread 统计信息
type Summary struct {
	Count   int     // 点数（含缺失）
	Missing int     // 缺失点数
	Mean    float64 // Spread 均值
	Std     float64 // Spread 标准差（总体）
	Min     float64
	Max     float64
	Last    float64 // 最后一个有效值
	ZScore  float64 // Last 相对样本均值的 z-score
}

// Summarize 计算 spread 的描述统计
func Summarize(s *Series) Summary {
	d := stats.Describe(s.Values())

	summary := Summary{
		Count:   s.Len(),
		Missing: s.MissingCount(),
		Mean:    d.Mean,
		Std:     d.Std,
		Min:     d.Min,
		Max:     d.Max,
	}
	if last, ok := s.Last(); ok {
		summary.Last = last.Value
		summary.ZScore = stats.ZScore(last.Value, d.Mean, d.Std)
	}
	return summary
}

// LogCorrelation 计算两条腿对数价格的 Pearson 相关系数
// 只使用两条腿都有值的时间点
func LogCorrelation(a, b *market.PriceSeries) (float64, error) {
	pa := a.Points()
	pb := b.Points()

	x := make([]float64, 0, len(pa))
	y := make([]float64, 0, len(pb))

	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		ta, tb := pa[i].Time, pb[j].Time
		switch {
		case ta.Before(tb):
			i++
		case tb.Before(ta):
			j++
		default:
			if !pa[i].Missing() && !pb[j].Missing() {
				if pa[i].Price <= 0 || pb[j].Price <= 0 {
					return 0, fmt.Errorf("%w: non-positive price at %s",
						ErrInvalidInput, ta.Format(market.DateLayout))
				}
				x = append(x, math.Log(pa[i].Price))
				y = append(y, math.Log(pb[j].Price))
			}
			i++
			j++
		}
	}

	if len(x) < 2 {
		return 0, fmt.Errorf("%w: %d aligned points", ErrInsufficientData, len(x))
	}
	return stats.Correlation(x, y), nil
}
