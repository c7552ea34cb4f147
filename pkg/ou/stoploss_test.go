package ou

import (
	"errors"
	"math"
	"testing"
)

func stopAt(m ContinuousModel, nStd float64) float64 {
	s := m.Sigma / math.Sqrt(2*m.Kappa)
	return m.Theta - nStd*s
}

func TestOptimalLevelsStopLoss(t *testing.T) {
	m := testModel()
	c := DefaultLevelCosts()
	base, err := OptimalLevels(m, c)
	if err != nil {
		t.Fatalf("OptimalLevels: %v", err)
	}

	t.Run("Far stop matches unconstrained levels", func(t *testing.T) {
		L := stopAt(m, 25)
		got, err := OptimalLevelsStopLoss(m, c, L)
		if err != nil {
			t.Fatal(err)
		}
		if !almostEqual(got.EntryUpper, base.Entry, 1e-8) {
			t.Errorf("EntryUpper = %v, want %v", got.EntryUpper, base.Entry)
		}
		if !almostEqual(got.Liquidation, base.Liquidation, 1e-8) {
			t.Errorf("Liquidation = %v, want %v", got.Liquidation, base.Liquidation)
		}
		if !(L < got.EntryLower && got.EntryLower < got.EntryUpper) {
			t.Errorf("expected L < EntryLower < EntryUpper, got %+v", got)
		}
	})

	t.Run("Moderate stop", func(t *testing.T) {
		// 4 个平稳标准差，L 低于平仓成本
		L := stopAt(m, 4)
		got, err := OptimalLevelsStopLoss(m, c, L)
		if err != nil {
			t.Fatal(err)
		}
		if got.StopLoss != L {
			t.Errorf("StopLoss = %v, want %v", got.StopLoss, L)
		}
		if !(L < got.EntryLower && got.EntryLower < got.EntryUpper && got.EntryUpper < got.Liquidation) {
			t.Errorf("expected L < a < d < b, got %+v", got)
		}
		if got.Liquidation > base.Liquidation+1e-9 {
			t.Errorf("Liquidation = %v, want <= %v", got.Liquidation, base.Liquidation)
		}

		// b*_L 处 V'(b) = 1
		p := stopLossProblem{levelProblem: newLevelProblem(m, c)}
		p.zL = (L - m.Theta) / p.s
		zb := (got.Liquidation - m.Theta) / p.s
		v := p.exitValue(zb)
		value, slope := p.at(v, zb)
		if !almostEqual(slope, 1, 1e-6) {
			t.Errorf("V'(b) = %v, want 1", slope)
		}
		if !almostEqual(value, got.Liquidation-c.ExitCost, 1e-9) {
			t.Errorf("V(b) = %v, want %v", value, got.Liquidation-c.ExitCost)
		}
		if stopValue, _ := p.at(v, p.zL); !almostEqual(stopValue, L-c.ExitCost, 1e-9) {
			t.Errorf("V(L) = %v, want %v", stopValue, L-c.ExitCost)
		}
	})

	t.Run("Stop beyond search range", func(t *testing.T) {
		L := stopAt(m, 40)
		got, err := OptimalLevelsStopLoss(m, c, L)
		if err != nil {
			t.Fatal(err)
		}
		if got.EntryLower != L || got.EntryUpper != base.Entry || got.Liquidation != base.Liquidation {
			t.Errorf("got %+v, want unconstrained levels %+v with EntryLower = %v", got, base, L)
		}
	})
}

func TestOptimalLevelsStopLoss_Errors(t *testing.T) {
	tests := []struct {
		name     string
		model    ContinuousModel
		costs    LevelCosts
		stopLoss float64
	}{
		{"Stop at theta", testModel(), DefaultLevelCosts(), 0},
		{"Stop above theta", testModel(), DefaultLevelCosts(), 0.1},
		{"NaN stop", testModel(), DefaultLevelCosts(), math.NaN()},
		{"Infinite stop", testModel(), DefaultLevelCosts(), math.Inf(-1)},
		{"Invalid model", ContinuousModel{Kappa: 0, Sigma: 0.3}, DefaultLevelCosts(), -0.2},
		{"Zero costs", testModel(), LevelCosts{EntryRate: 0.05, ExitRate: 0.05}, -0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OptimalLevelsStopLoss(tt.model, tt.costs, tt.stopLoss)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("err = %v, want ErrInvalidParameter", err)
			}
		})
	}
}
