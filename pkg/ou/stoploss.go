package ou

import (
	"fmt"
	"math"
)

// StopLossLevels 带止损的最优水平
// spread 落入 [EntryLower, EntryUpper] 时进场，涨到 Liquidation 平仓，跌到 StopLoss 强制平仓
type StopLossLevels struct {
	StopLoss    float64 `json:"stop_loss"`
	EntryLower  float64 `json:"entry_lower"`
	EntryUpper  float64 `json:"entry_upper"`
	Liquidation float64 `json:"liquidation"`
}

// OptimalLevelsStopLoss 求解止损位 L 下的最优进场区间 [a*, d*] 与平仓水平 b*_L
//
// 平仓：(L, b) 上 V = A·F + B·G，V(L) = L - c_exit，V(b) = b - c_exit，b*_L 由 V'(b) = 1 确定
// 进场上界：G(d)(V'(d) - 1) - G'(d)(V(d) - d - c_entry) = 0
// 进场下界：F̂(a)(V'(a) - 1) - F̂'(a)(V(a) - a - c_entry) = 0，F̂ 为 r_entry 下的递增解
//
// L 在 θ 下方 30 个平稳标准差之外时不会被触及，结果与 OptimalLevels 相同，EntryLower 取 L
func OptimalLevelsStopLoss(m ContinuousModel, c LevelCosts, stopLoss float64) (StopLossLevels, error) {
	if err := validateLevelInputs(m, c); err != nil {
		return StopLossLevels{}, err
	}
	if math.IsNaN(stopLoss) || math.IsInf(stopLoss, 0) || stopLoss >= m.Theta {
		return StopLossLevels{}, fmt.Errorf("%w: stop-loss must be below theta=%v, got %v",
			ErrInvalidParameter, m.Theta, stopLoss)
	}

	p := stopLossProblem{levelProblem: newLevelProblem(m, c)}
	p.zL = (stopLoss - p.theta) / p.s

	if p.zL <= -zLimit {
		levels, err := OptimalLevels(m, c)
		if err != nil {
			return StopLossLevels{}, err
		}
		return StopLossLevels{
			StopLoss:    stopLoss,
			EntryLower:  stopLoss,
			EntryUpper:  levels.Entry,
			Liquidation: levels.Liquidation,
		}, nil
	}

	zb, err := p.liquidationZ()
	if err != nil {
		return StopLossLevels{}, err
	}
	v := p.exitValue(zb)

	zd, err := p.entryUpperZ(v, zb)
	if err != nil {
		return StopLossLevels{}, err
	}
	za, err := p.entryLowerZ(v, zd)
	if err != nil {
		return StopLossLevels{}, err
	}

	return StopLossLevels{
		StopLoss:    stopLoss,
		EntryLower:  p.level(za),
		EntryUpper:  p.level(zd),
		Liquidation: p.level(zb),
	}, nil
}

type stopLossProblem struct {
	levelProblem
	zL float64
}

// 平仓问题中 r_exit 下的递减解
func (p stopLossProblem) gExit(z float64) float64      { return phi(p.kExit, -z) }
func (p stopLossProblem) gExitPrime(z float64) float64 { return -phi(p.kExit+1, -z) / p.s }

// 进场下界用 r_entry 下的递增解
func (p stopLossProblem) fEntry(z float64) float64      { return phi(p.kEnt, z) }
func (p stopLossProblem) fEntryPrime(z float64) float64 { return phi(p.kEnt+1, z) / p.s }

// exitValue 止损下以 b 平仓的价值函数
// 系数按 F(b)、G(L) 归一化，避免 F·G 乘积溢出
type exitValue struct {
	alpha, beta float64
	fb, gl      float64
}

func (p stopLossProblem) exitValue(zb float64) exitValue {
	fb, gl := p.f(zb), p.gExit(p.zL)
	rF := p.f(p.zL) / fb
	rG := p.gExit(zb) / gl
	det := 1 - rF*rG

	gain := p.level(zb) - p.cExit
	loss := p.level(p.zL) - p.cExit
	return exitValue{
		alpha: (gain - loss*rG) / det,
		beta:  (loss - gain*rF) / det,
		fb:    fb,
		gl:    gl,
	}
}

// at 返回 V(z) 与 V'(z)，z ∈ [zL, zb]
func (p stopLossProblem) at(v exitValue, z float64) (float64, float64) {
	value := v.alpha*p.f(z)/v.fb + v.beta*p.gExit(z)/v.gl
	slope := v.alpha*p.fPrime(z)/v.fb + v.beta*p.gExitPrime(z)/v.gl
	return value, slope
}

// liquidationZ 紧贴 L 处 V'(b) - 1 < 0，向上扫描至变号
func (p stopLossProblem) liquidationZ() (float64, error) {
	residual := func(z float64) float64 {
		_, slope := p.at(p.exitValue(z), z)
		return slope - 1
	}

	start := p.zL + scanStep
	if start >= zLimit || !(residual(start) < 0) {
		return 0, fmt.Errorf("%w: stop-loss leaves no continuation region", ErrNoSolution)
	}
	root, ok := bracketAndBisect(residual, start, scanStep, zLimit)
	if !ok {
		return 0, fmt.Errorf("%w: stop-loss liquidation residual never changes sign", ErrNoSolution)
	}
	return root, nil
}

// entryUpperZ 在 b*_L 处残差为 G'(b)(c_entry + c_exit) < 0，向下扫描至 L
func (p stopLossProblem) entryUpperZ(v exitValue, zb float64) (float64, error) {
	residual := func(z float64) float64 {
		value, slope := p.at(v, z)
		return p.g(z)*(slope-1) - p.gPrime(z)*(value-p.level(z)-p.cEnt)
	}
	if residual(zb) >= 0 {
		return 0, fmt.Errorf("%w: entry residual non-negative at liquidation level", ErrNoSolution)
	}

	root, ok := bracketAndBisect(residual, zb, -scanStep, p.zL)
	if !ok {
		return 0, fmt.Errorf("%w: no profitable entry above stop-loss", ErrNoSolution)
	}
	return root, nil
}

// entryLowerZ 在 d* 处残差为负，L 处 V - x - c_entry = -(c_entry + c_exit)，向下扫描至 L
func (p stopLossProblem) entryLowerZ(v exitValue, zd float64) (float64, error) {
	residual := func(z float64) float64 {
		value, slope := p.at(v, z)
		return p.fEntry(z)*(slope-1) - p.fEntryPrime(z)*(value-p.level(z)-p.cEnt)
	}
	if residual(zd) >= 0 {
		return 0, fmt.Errorf("%w: lower entry residual non-negative at upper entry level", ErrNoSolution)
	}

	root, ok := bracketAndBisect(residual, zd, -scanStep, p.zL)
	if !ok {
		return 0, fmt.Errorf("%w: entry interval has no lower bound above stop-loss", ErrNoSolution)
	}
	return root, nil
}
