package ou

import (
	"fmt"
	"math"
)

// ContinuousModel 连续时间 OU 过程 dX = Kappa(Theta - X)dt + Sigma dW
// Dt 为一个观测周期对应的时间长度（日频数据按年计为 1/252）
type ContinuousModel struct {
	Kappa float64 `json:"kappa"`
	Theta float64 `json:"theta"`
	Sigma float64 `json:"sigma"`
	Dt    float64 `json:"dt"`
}

// Continuous 将 AR(1) 拟合结果映射为连续 OU 参数（精确离散化）
//
//	β1 = exp(-κ·dt)
//	σ_ε² = σ²(1 - β1²) / 2κ
//
// 要求 0 < β1 < 1，否则不存在对应的连续均值回复过程
func (p Params) Continuous(dt float64) (ContinuousModel, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return ContinuousModel{}, fmt.Errorf("%w: dt=%v", ErrInvalidParameter, dt)
	}
	if !(p.Beta1 > 0 && p.Beta1 < 1) {
		return ContinuousModel{}, fmt.Errorf("%w: beta1=%.6g outside (0, 1)", ErrDegenerateFit, p.Beta1)
	}

	kappa := -math.Log(p.Beta1) / dt
	return ContinuousModel{
		Kappa: kappa,
		Theta: p.Beta0 / (1 - p.Beta1),
		Sigma: p.Sigma * math.Sqrt(2*kappa/(1-p.Beta1*p.Beta1)),
		Dt:    dt,
	}, nil
}

// HalfLife 半衰期，单位与 Dt 相同
func (m ContinuousModel) HalfLife() float64 {
	return math.Ln2 / m.Kappa
}

// StationaryStd 平稳分布标准差 σ/sqrt(2κ)
func (m ContinuousModel) StationaryStd() float64 {
	return m.Sigma / math.Sqrt(2*m.Kappa)
}

// HalfLifePeriods 半衰期折算成观测周期数
func (m ContinuousModel) HalfLifePeriods() float64 {
	return m.HalfLife() / m.Dt
}

func (m ContinuousModel) validate() error {
	if !(m.Kappa > 0) || math.IsInf(m.Kappa, 0) {
		return fmt.Errorf("%w: kappa=%v", ErrInvalidParameter, m.Kappa)
	}
	if !(m.Sigma > 0) || math.IsInf(m.Sigma, 0) {
		return fmt.Errorf("%w: sigma=%v", ErrInvalidParameter, m.Sigma)
	}
	if math.IsNaN(m.Theta) || math.IsInf(m.Theta, 0) {
		return fmt.Errorf("%w: theta=%v", ErrInvalidParameter, m.Theta)
	}
	return nil
}
