// Package stats provides statistical functions used by the spread and OU estimation code
package stats

import (
	"math"
)

// Description 一组样本的描述统计
type Description struct {
	Mean     float64
	Std      float64 // 总体标准差
	Variance float64
	Min      float64
	Max      float64
	Count    int
}

// Describe 计算均值、总体方差、极值
// NaN 视为缺失值，不参与计算
func Describe(data []float64) Description {
	clean := DropMissing(data)
	if len(clean) == 0 {
		return Description{}
	}

	d := Description{
		Min:   clean[0],
		Max:   clean[0],
		Count: len(clean),
	}

	for _, val := range clean[1:] {
		d.Min = math.Min(d.Min, val)
		d.Max = math.Max(d.Max, val)
	}
	d.Mean = Mean(clean)
	d.Variance = Variance(clean)
	d.Std = math.Sqrt(d.Variance)

	return d
}

// DropMissing 返回去掉 NaN 之后的副本
func DropMissing(data []float64) []float64 {
	result := make([]float64, 0, len(data))
	for _, val := range data {
		if !math.IsNaN(val) {
			result = append(result, val)
		}
	}
	return result
}

// Mean 计算均值
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	var sum float64
	for _, val := range data {
		sum += val
	}
	return sum / float64(len(data))
}

// Variance 总体方差 Σ(x-x̄)²/n，空输入返回 0
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return centeredSquares(data, Mean(data)) / float64(len(data))
}

// centeredSquares Σ(x-mean)²
func centeredSquares(data []float64, mean float64) float64 {
	var ss float64
	for _, val := range data {
		ss += (val - mean) * (val - mean)
	}
	return ss
}

// ZScore 计算 Z-Score
// z = (x - μ) / σ，σ 过小时返回 0
func ZScore(value, mean, std float64) float64 {
	if std < 1e-10 {
		return 0
	}
	return (value - mean) / std
}

// Correlation 计算 Pearson 相关系数
// r = Σ[(xi - x̄)(yi - ȳ)] / sqrt[Σ(xi - x̄)² * Σ(yi - ȳ)²]
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}

	meanX := Mean(x)
	meanY := Mean(y)

	var numerator, varX, varY float64
	for i := range x {
		diffX := x[i] - meanX
		diffY := y[i] - meanY
		numerator += diffX * diffY
		varX += diffX * diffX
		varY += diffY * diffY
	}

	denominator := math.Sqrt(varX * varY)
	if denominator < 1e-10 {
		return 0
	}

	return numerator / denominator
}
