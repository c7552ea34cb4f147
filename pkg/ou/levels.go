package ou

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/integrate/quad"
)

// LevelCosts 折现率与交易成本
// 折现率的时间单位与 ContinuousModel.Dt 一致（通常为年）
type LevelCosts struct {
	EntryRate float64
	ExitRate  float64
	EntryCost float64
	ExitCost  float64
}

// DefaultLevelCosts r = 5%/5%，c = 0.02/0.02
func DefaultLevelCosts() LevelCosts {
	return LevelCosts{
		EntryRate: 0.05,
		ExitRate:  0.05,
		EntryCost: 0.02,
		ExitCost:  0.02,
	}
}

// Levels 最优进场 / 平仓水平（spread 值）
type Levels struct {
	Entry       float64 `json:"entry"`
	Liquidation float64 `json:"liquidation"`
}

const (
	// 标准化坐标 z = (x-θ)/s 的搜索范围，超出后 exp(z²/2) 接近溢出
	zLimit = 30.0
	// 扫描步长
	scanStep = 0.25
	// 二分终止宽度
	bisectTol = 1e-12
	// 二分最大迭代
	bisectMaxIter = 200

	// 右侧积分截断：峰值 max(z,0) 之外再积 12 个单位
	tailWidth = 12.0
	// 每段 Gauss-Legendre 节点数
	quadNodes = 128
)

// OptimalLevels 求解无止损情形下的最优进场 d* 与最优平仓 b*
//
// 平仓：F(b) - (b - c_exit)F'(b) = 0
// 进场：G(d)(V'(d) - 1) - G'(d)(V(d) - d - c_entry) = 0，d < b*
//
//	F(x) = ∫₀^∞ u^{r_exit/κ-1} exp(√(2κ/σ²)(x-θ)u - u²/2) du
//	G(x) = ∫₀^∞ u^{r_entry/κ-1} exp(√(2κ/σ²)(θ-x)u - u²/2) du
//	V(x) = (b*-c_exit)F(x)/F(b*)，x < b*
func OptimalLevels(m ContinuousModel, c LevelCosts) (Levels, error) {
	if err := validateLevelInputs(m, c); err != nil {
		return Levels{}, err
	}

	p := newLevelProblem(m, c)

	zb, err := p.liquidationZ()
	if err != nil {
		return Levels{}, err
	}
	zd, err := p.entryZ(zb)
	if err != nil {
		return Levels{}, err
	}

	return Levels{
		Entry:       p.level(zd),
		Liquidation: p.level(zb),
	}, nil
}

func validateLevelInputs(m ContinuousModel, c LevelCosts) error {
	if err := m.validate(); err != nil {
		return err
	}
	if !(c.EntryRate > 0) || !(c.ExitRate > 0) {
		return fmt.Errorf("%w: discount rates must be > 0, got %v/%v",
			ErrInvalidParameter, c.EntryRate, c.ExitRate)
	}
	if c.EntryCost < 0 || c.ExitCost < 0 || c.EntryCost+c.ExitCost <= 0 {
		return fmt.Errorf("%w: transaction costs must be >= 0 with a positive total, got %v/%v",
			ErrInvalidParameter, c.EntryCost, c.ExitCost)
	}
	return nil
}

// levelProblem 在标准化坐标 z 上求解，x = θ + s·z
type levelProblem struct {
	theta, s    float64
	kExit, kEnt float64
	cExit, cEnt float64
}

func newLevelProblem(m ContinuousModel, c LevelCosts) levelProblem {
	return levelProblem{
		theta: m.Theta,
		s:     m.StationaryStd(),
		kExit: c.ExitRate / m.Kappa,
		kEnt:  c.EntryRate / m.Kappa,
		cExit: c.ExitCost,
		cEnt:  c.EntryCost,
	}
}

func (p levelProblem) level(z float64) float64 {
	return p.theta + p.s*z
}

func (p levelProblem) f(z float64) float64      { return phi(p.kExit, z) }
func (p levelProblem) fPrime(z float64) float64 { return phi(p.kExit+1, z) / p.s }
func (p levelProblem) g(z float64) float64      { return phi(p.kEnt, -z) }
func (p levelProblem) gPrime(z float64) float64 { return -phi(p.kEnt+1, -z) / p.s }

// liquidationResidual F(b) - (b - c)F'(b)
func (p levelProblem) liquidationResidual(z float64) float64 {
	return p.f(z) - (p.level(z)-p.cExit)*p.fPrime(z)
}

// entryResidual G(d)(V'(d) - 1) - G'(d)(V(d) - d - c)
func (p levelProblem) entryResidual(z, zb float64) float64 {
	scale := (p.level(zb) - p.cExit) / p.f(zb)
	v := scale * p.f(z)
	vPrime := scale * p.fPrime(z)
	d := p.level(z)
	return p.g(z)*(vPrime-1) - p.gPrime(z)*(v-d-p.cEnt)
}

// liquidationZ b* > c_exit：在 b = c_exit 处残差为 F > 0，向上扫描至变号
func (p levelProblem) liquidationZ() (float64, error) {
	lo := (p.cExit - p.theta) / p.s
	if lo < -zLimit {
		lo = -zLimit
	}
	if lo >= zLimit || p.liquidationResidual(lo) <= 0 {
		return 0, fmt.Errorf("%w: liquidation level outside ±%.0f stationary std", ErrNoSolution, zLimit)
	}

	root, ok := bracketAndBisect(p.liquidationResidual, lo, scanStep, zLimit)
	if !ok {
		return 0, fmt.Errorf("%w: liquidation residual never changes sign", ErrNoSolution)
	}
	return root, nil
}

// entryZ d* < b*：残差在 b*⁻ 处为 G'(b*)(c_entry + c_exit) < 0，向下扫描至变号
func (p levelProblem) entryZ(zb float64) (float64, error) {
	residual := func(z float64) float64 {
		return p.entryResidual(z, zb)
	}
	if residual(zb) >= 0 {
		return 0, fmt.Errorf("%w: entry residual non-negative at liquidation level", ErrNoSolution)
	}

	root, ok := bracketAndBisect(residual, zb, -scanStep, -zLimit)
	if !ok {
		return 0, fmt.Errorf("%w: entry residual never changes sign", ErrNoSolution)
	}
	return root, nil
}

// bracketAndBisect 从 start 按 step 走到 limit，找到第一个与 fn(start) 异号的点后二分
func bracketAndBisect(fn func(float64) float64, start, step, limit float64) (float64, bool) {
	a := start
	fa := fn(a)
	for {
		b := a + step
		if (step > 0 && b > limit) || (step < 0 && b < limit) {
			// 最后一段不足一个步长时截到 limit
			if a == limit {
				return 0, false
			}
			b = limit
		}
		fb := fn(b)
		if math.IsNaN(fb) {
			return 0, false
		}
		if (fa > 0) != (fb > 0) {
			return bisect(fn, a, b, fa), true
		}
		a, fa = b, fb
	}
}

func bisect(fn func(float64) float64, a, b, fa float64) float64 {
	for i := 0; i < bisectMaxIter && math.Abs(b-a) > bisectTol; i++ {
		mid := 0.5 * (a + b)
		fm := fn(mid)
		if fm == 0 {
			return mid
		}
		if (fm > 0) == (fa > 0) {
			a, fa = mid, fm
		} else {
			b = mid
		}
	}
	return 0.5 * (a + b)
}

// phi(k, z) = ∫₀^∞ u^{k-1} exp(z·u - u²/2) du，k > 0
//
// [0, a] 上用 Hermite 展开逐项积分，a = 1/(1+|z|) 保证展开不发生相消；
// 其余部分用 Gauss-Legendre 数值积分
func phi(k, z float64) float64 {
	a := 1 / (1 + math.Abs(z))
	total := phiHead(k, z, a)

	integrand := func(u float64) float64 {
		return math.Pow(u, k-1) * math.Exp(z*u-0.5*u*u)
	}
	if a < 1 {
		total += quad.Fixed(integrand, a, 1, quadNodes, legendre, 0)
	}
	upper := math.Max(1, z) + tailWidth
	total += quad.Fixed(integrand, 1, upper, quadNodes, legendre, 0)
	return total
}

// phiHead ∫₀^a u^{k-1} exp(z·u - u²/2) du
//
//	exp(z·u - u²/2) = Σ h_n u^n，h_0 = 1，h_1 = z，h_{n+1} = (z·h_n - h_{n-1})/(n+1)
//
// 代入 u = a·v 后 g_n = h_n·aⁿ，逐项积分得 a^k · Σ g_n/(n+k)
func phiHead(k, z, a float64) float64 {
	za, a2 := z*a, a*a

	gPrev, g := 1.0, za
	sum := 1/k + g/(1+k)
	small := 0
	for n := 1; n < 400; n++ {
		gNext := (za*g - a2*gPrev) / float64(n+1)
		term := gNext / (float64(n+1) + k)
		sum += term
		if math.Abs(term) < 1e-17*math.Abs(sum) {
			small++
			if small >= 2 {
				break
			}
		} else {
			small = 0
		}
		gPrev, g = g, gNext
	}
	return math.Pow(a, k) * sum
}

// cachedLegendre 复用 [-1, 1] 上的 Legendre 节点，每次只做仿射变换
type cachedLegendre struct {
	once   sync.Once
	x, w   []float64
	nNodes int
}

var legendre = &cachedLegendre{}

func (c *cachedLegendre) FixedLocations(x, weight []float64, min, max float64) {
	c.once.Do(func() {
		c.nNodes = len(x)
		c.x = make([]float64, c.nNodes)
		c.w = make([]float64, c.nNodes)
		quad.Legendre{}.FixedLocations(c.x, c.w, -1, 1)
	})
	if len(x) != c.nNodes {
		quad.Legendre{}.FixedLocations(x, weight, min, max)
		return
	}

	half := 0.5 * (max - min)
	mid := 0.5 * (max + min)
	for i := range x {
		x[i] = mid + half*c.x[i]
		weight[i] = half * c.w[i]
	}
}
