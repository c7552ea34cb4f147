package stats

import (
	"math/rand"
)

// AR1 离散 OU / AR(1) 过程
// x[t] = Intercept + Slope*x[t-1] + NoiseStd*ε[t]，ε ~ N(0,1)
type AR1 struct {
	Intercept float64
	Slope     float64
	NoiseStd  float64
	Start     float64
}

// NewAR1FromOU 由离散 OU 参数 (mu, theta) 构造 AR(1)
// Slope = 1 - mu, Intercept = mu * theta
func NewAR1FromOU(mu, theta, noiseStd, start float64) AR1 {
	return AR1{
		Intercept: mu * theta,
		Slope:     1 - mu,
		NoiseStd:  noiseStd,
		Start:     start,
	}
}

// Generate 生成 n 个点，随机数只来自显式传入的 seed
// NoiseStd 为 0 时结果与 seed 无关，是完全确定的序列
func (p AR1) Generate(n int, seed int64) []float64 {
	if n <= 0 {
		return []float64{}
	}

	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	out[0] = p.Start
	for t := 1; t < n; t++ {
		out[t] = p.Intercept + p.Slope*out[t-1]
		if p.NoiseStd != 0 {
			out[t] += p.NoiseStd * rng.NormFloat64()
		}
	}
	return out
}
