// Package spread builds log-price spreads between two instruments
package spread

import (
	"math"
	"time"
)

// Point spread 序列中的一个点，Value 为 NaN 表示缺失
type Point struct {
	Time  time.Time
	Value float64
}

// Missing 是否缺失
func (p Point) Missing() bool {
	return math.IsNaN(p.Value)
}

// Series 对数价差序列 log(A) - log(B)
// 构造后不可修改
type Series struct {
	legA   string
	legB   string
	points []Point
}

// NewSeries 直接由数值构造价差序列（用于外部传入的 spread）
func NewSeries(legA, legB string, points []Point) *Series {
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Series{legA: legA, legB: legB, points: cp}
}

// FromValues 由无时间戳的数值构造序列，时间使用从 epoch 起的递增天数
func FromValues(values []float64) *Series {
	points := make([]Point, len(values))
	base := time.Unix(0, 0).UTC()
	for i, v := range values {
		points[i] = Point{Time: base.AddDate(0, 0, i), Value: v}
	}
	return &Series{points: points}
}

// Name 返回 "A/B"
func (s *Series) Name() string {
	return s.legA + "/" + s.legB
}

// Legs 返回两条腿的品种代码
func (s *Series) Legs() (string, string) {
	return s.legA, s.legB
}

// Len 返回点数（含缺失）
func (s *Series) Len() int {
	return len(s.points)
}

// Values 返回数值列（缺失为 NaN）
func (s *Series) Values() []float64 {
	result := make([]float64, len(s.points))
	for i, p := range s.points {
		result[i] = p.Value
	}
	return result
}

// Points 返回全部点
func (s *Series) Points() []Point {
	result := make([]Point, len(s.points))
	copy(result, s.points)
	return result
}

// MissingCount 返回缺失点数量
func (s *Series) MissingCount() int {
	n := 0
	for _, p := range s.points {
		if p.Missing() {
			n++
		}
	}
	return n
}

// Last 返回最后一个非缺失点
func (s *Series) Last() (Point, bool) {
	for i := len(s.points) - 1; i >= 0; i-- {
		if !s.points[i].Missing() {
			return s.points[i], true
		}
	}
	return Point{}, false
}
