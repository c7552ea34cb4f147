// Package ou fits Ornstein-Uhlenbeck models to spread series
package ou

import (
	"errors"
	"fmt"
	"math"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/stats"
)

// DefaultMuTolerance |mu| 小于该值视为 mu == 0
const DefaultMuTolerance = 1e-8

// Params 离散 OU 参数（lag-1 回归）
// spread[t] = Beta0 + Beta1*spread[t-1] + ε，Mu = 1 - Beta1，Theta = Beta0 / Mu
type Params struct {
	Mu    float64 `json:"mu"`    // 均值回复速度（离散、无量纲）
	Theta float64 `json:"theta"` // 长期均值
	Sigma float64 `json:"sigma"` // 残差标准差

	Beta0    float64 `json:"beta0"`
	Beta1    float64 `json:"beta1"`
	RSquared float64 `json:"r_squared"`
	Pairs    int     `json:"pairs"` // 参与回归的滞后对数量

	// MeanReverting 0 < Mu < 2 时为 true
	// 区间外的结果数值上有效，但代表发散或振荡不稳定的过程
	MeanReverting bool `json:"mean_reverting"`
}

// HalfLife 离散半衰期（单位：观测周期）
// 只有 0 < Mu < 1（单调回复）时有限
func (p Params) HalfLife() float64 {
	if p.Mu <= 0 || p.Mu >= 1 {
		return math.Inf(1)
	}
	return math.Ln2 / -math.Log(1-p.Mu)
}

type options struct {
	muTolerance float64
}

// Option 调整估计行为
type Option func(*options)

// WithMuTolerance 设置 mu 接近 0 的判定阈值
func WithMuTolerance(tol float64) Option {
	return func(o *options) {
		if tol >= 0 {
			o.muTolerance = tol
		}
	}
}

// Estimate 对 spread 序列做 lag-1 OLS 回归，得到离散 OU 参数
// 缺失值两侧的滞后对会被跳过
func Estimate(s *spread.Series, opts ...Option) (Params, error) {
	if s == nil {
		return Params{}, fmt.Errorf("%w: nil spread", ErrInsufficientData)
	}
	return EstimateValues(s.Values(), opts...)
}

// EstimateValues 与 Estimate 相同，直接作用于数值序列（NaN 表示缺失）
func EstimateValues(values []float64, opts ...Option) (Params, error) {
	o := options{muTolerance: DefaultMuTolerance}
	for _, opt := range opts {
		opt(&o)
	}

	prev, next := stats.Lagged(values)
	if len(prev) < 2 {
		return Params{}, fmt.Errorf("%w: %d usable lagged pairs, need at least 2",
			ErrInsufficientData, len(prev))
	}

	fit, err := stats.OLS(prev, next)
	if err != nil {
		if errors.Is(err, stats.ErrZeroVariance) {
			return Params{}, fmt.Errorf("%w: spread is constant", ErrDegenerateFit)
		}
		return Params{}, fmt.Errorf("lag-1 regression: %w", err)
	}

	mu := 1 - fit.Slope
	if math.Abs(mu) <= o.muTolerance {
		return Params{}, fmt.Errorf("%w: beta1=%.12g", ErrDegenerateFit, fit.Slope)
	}

	return Params{
		Mu:            mu,
		Theta:         fit.Intercept / mu,
		Sigma:         fit.ResidualStd,
		Beta0:         fit.Intercept,
		Beta1:         fit.Slope,
		RSquared:      fit.RSquared,
		Pairs:         fit.N,
		MeanReverting: mu > 0 && mu < 2,
	}, nil
}
