// Package market holds price series and the sources they are loaded from
package market

import (
	"math"
	"sort"
	"time"
)

// Point 一个观测值，Price 为 NaN 表示该时间点缺失
type Point struct {
	Time  time.Time
	Price float64
}

// Missing 是否为缺失值
func (p Point) Missing() bool {
	return math.IsNaN(p.Price)
}

// MissingPoint 构造一个缺失观测
func MissingPoint(t time.Time) Point {
	return Point{Time: t, Price: math.NaN()}
}

// PriceSeries 单个品种按时间排序的价格序列
// 构造后不可修改，所有访问方法都返回副本
type PriceSeries struct {
	symbol string
	points []Point
}

// NewPriceSeries 创建价格序列
// 输入会被复制并按时间排序；同一时间戳出现多次时保留最后一个
func NewPriceSeries(symbol string, points []Point) *PriceSeries {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	deduped := make([]Point, 0, len(sorted))
	for _, p := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].Time.Equal(p.Time) {
			deduped[n-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return &PriceSeries{
		symbol: symbol,
		points: deduped,
	}
}

// Symbol 返回品种代码
func (s *PriceSeries) Symbol() string {
	return s.symbol
}

// Len 返回数据点数量（含缺失）
func (s *PriceSeries) Len() int {
	return len(s.points)
}

// Points 返回全部数据点
func (s *PriceSeries) Points() []Point {
	result := make([]Point, len(s.points))
	copy(result, s.points)
	return result
}

// Prices 返回价格列（缺失为 NaN）
func (s *PriceSeries) Prices() []float64 {
	result := make([]float64, len(s.points))
	for i, p := range s.points {
		result[i] = p.Price
	}
	return result
}

// Times 返回时间列
func (s *PriceSeries) Times() []time.Time {
	result := make([]time.Time, len(s.points))
	for i, p := range s.points {
		result[i] = p.Time
	}
	return result
}

// MissingCount 返回缺失点数量
func (s *PriceSeries) MissingCount() int {
	n := 0
	for _, p := range s.points {
		if p.Missing() {
			n++
		}
	}
	return n
}

// Range 返回 [start, end] 闭区间内的子序列
// start/end 为零值时表示不限制该端
func (s *PriceSeries) Range(start, end time.Time) *PriceSeries {
	result := make([]Point, 0, len(s.points))
	for _, p := range s.points {
		if !start.IsZero() && p.Time.Before(start) {
			continue
		}
		if !end.IsZero() && p.Time.After(end) {
			continue
		}
		result = append(result, p)
	}
	return &PriceSeries{symbol: s.symbol, points: result}
}

// Last 返回最后一个非缺失观测
func (s *PriceSeries) Last() (Point, bool) {
	for i := len(s.points) - 1; i >= 0; i-- {
		if !s.points[i].Missing() {
			return s.points[i], true
		}
	}
	return Point{}, false
}
