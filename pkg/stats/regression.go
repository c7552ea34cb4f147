package stats

import (
	"errors"
	"math"
)

var (
	// ErrLengthMismatch is returned when regressor and response differ in length
	ErrLengthMismatch = errors.New("x and y length mismatch")

	// ErrTooFewPoints is returned when fewer than two observations are supplied
	ErrTooFewPoints = errors.New("at least 2 observations required")

	// ErrZeroVariance is returned when the regressor is constant
	ErrZeroVariance = errors.New("regressor has zero variance")
)

// OLSResult 一元线性回归 y = Intercept + Slope*x 的结果
type OLSResult struct {
	Intercept   float64
	Slope       float64
	ResidualStd float64 // sqrt(SSR / (n-2))，n <= 2 时为 0
	RSquared    float64
	N           int
}

// OLS 普通最小二乘（正规方程的中心化形式）
// Slope = Sxy / Sxx, Intercept = ȳ - Slope*x̄
// 中心化两遍计算，避免 Σx² - n·x̄² 的相消误差
func OLS(x, y []float64) (OLSResult, error) {
	if len(x) != len(y) {
		return OLSResult{}, ErrLengthMismatch
	}
	n := len(x)
	if n < 2 {
		return OLSResult{}, ErrTooFewPoints
	}
	if isConstant(x) {
		return OLSResult{}, ErrZeroVariance
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return OLSResult{}, ErrZeroVariance
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var ssr float64
	for i := 0; i < n; i++ {
		r := y[i] - (intercept + slope*x[i])
		ssr += r * r
	}

	result := OLSResult{
		Intercept: intercept,
		Slope:     slope,
		RSquared:  1,
		N:         n,
	}
	if n > 2 {
		result.ResidualStd = math.Sqrt(ssr / float64(n-2))
	}
	if syy > 0 {
		result.RSquared = 1 - ssr/syy
	}

	return result, nil
}

// Lagged 构造一阶滞后对 (x[t-1], x[t])
// 任一侧为 NaN 的配对会被跳过
func Lagged(series []float64) (prev, next []float64) {
	if len(series) < 2 {
		return nil, nil
	}

	prev = make([]float64, 0, len(series)-1)
	next = make([]float64, 0, len(series)-1)
	for t := 1; t < len(series); t++ {
		if math.IsNaN(series[t-1]) || math.IsNaN(series[t]) {
			continue
		}
		prev = append(prev, series[t-1])
		next = append(next, series[t])
	}
	return prev, next
}

func isConstant(data []float64) bool {
	for _, val := range data[1:] {
		if val != data[0] {
			return false
		}
	}
	return true
}
