package spread

import (
	"fmt"
	"math"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
)

// Build 计算对数价差 log(a) - log(b)，按时间戳对齐
// 只保留两条腿都存在的时间戳；任一腿在该时间点缺失时输出也记为缺失，不做插值
func Build(a, b *market.PriceSeries) (*Series, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: nil price series", ErrInsufficientData)
	}

	// 对数域要求：所有已知价格必须 > 0
	if err := checkPositive(a); err != nil {
		return nil, err
	}
	if err := checkPositive(b); err != nil {
		return nil, err
	}

	pa := a.Points()
	pb := b.Points()

	points := make([]Point, 0, min(len(pa), len(pb)))
	usable := 0

	// 两个序列都已按时间排序，双指针合并
	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		ta, tb := pa[i].Time, pb[j].Time
		switch {
		case ta.Before(tb):
			i++
		case tb.Before(ta):
			j++
		default:
			p := Point{Time: ta, Value: math.NaN()}
			if !pa[i].Missing() && !pb[j].Missing() {
				p.Value = math.Log(pa[i].Price) - math.Log(pb[j].Price)
				usable++
			}
			points = append(points, p)
			i++
			j++
		}
	}

	if usable < 2 {
		return nil, fmt.Errorf("%w: %s/%s share %d usable timestamps, need at least 2",
			ErrInsufficientData, a.Symbol(), b.Symbol(), usable)
	}

	return &Series{
		legA:   a.Symbol(),
		legB:   b.Symbol(),
		points: points,
	}, nil
}

func checkPositive(s *market.PriceSeries) error {
	for _, p := range s.Points() {
		if p.Missing() {
			continue
		}
		if p.Price <= 0 {
			return fmt.Errorf("%w: %s has price %v at %s",
				ErrInvalidInput, s.Symbol(), p.Price, p.Time.Format(market.DateLayout))
		}
	}
	return nil
}
