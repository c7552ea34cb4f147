package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
)

// FitSpread 在一个 spread 序列上完成全部拟合：
// 离散 OU 参数 → 连续模型 → 最优进场 / 平仓水平 → z-score
//
// 只有离散回归失败才返回错误；后续步骤失败时结果中对应字段为 nil
func FitSpread(s *spread.Series, window Window, opts FitOptions) (*Fit, error) {
	params, err := ou.Estimate(s, ou.WithMuTolerance(opts.MuTolerance))
	if err != nil {
		return nil, fmt.Errorf("estimate %s: %w", s.Name(), err)
	}

	fit := &Fit{
		Window: window,
		Spread: spread.Summarize(s),
		Params: params,
	}
	if !params.MeanReverting {
		fit.Notes = append(fit.Notes, fmt.Sprintf("mu=%.4f outside (0, 2): not mean reverting", params.Mu))
	}

	model, err := params.Continuous(opts.Dt)
	if err != nil {
		fit.Notes = append(fit.Notes, fmt.Sprintf("no continuous model: %v", err))
		return fit, nil
	}
	fit.Model = &model

	levels, err := ou.OptimalLevels(model, opts.Costs)
	if err != nil {
		fit.Notes = append(fit.Notes, fmt.Sprintf("no optimal levels: %v", err))
		return fit, nil
	}
	fit.Levels = &levels

	if opts.StopLoss != nil {
		sl, err := ou.OptimalLevelsStopLoss(model, opts.Costs, *opts.StopLoss)
		if err != nil {
			fit.Notes = append(fit.Notes, fmt.Sprintf("no stop-loss levels: %v", err))
		} else {
			fit.StopLossLevels = &sl
		}
	}

	z, err := ou.ZScores(model.Theta, model.Sigma, levels.Entry, levels.Liquidation)
	if err != nil {
		fit.Notes = append(fit.Notes, fmt.Sprintf("no z-scores: %v", err))
		return fit, nil
	}
	fit.ZScores = &z

	return fit, nil
}

// Evaluate 用已拟合的模型评估测试窗口
func Evaluate(a, b *market.PriceSeries, s *spread.Series, window Window, fit *Fit) (*Evaluation, error) {
	eval := &Evaluation{
		Window: window,
		Spread: spread.Summarize(s),
	}

	corr, err := spread.LogCorrelation(a, b)
	if err != nil && !errors.Is(err, spread.ErrInsufficientData) {
		return nil, fmt.Errorf("correlation: %w", err)
	}
	eval.Correlation = corr

	values := s.Values()
	for _, v := range values {
		if !math.IsNaN(v) {
			eval.Points++
		}
	}

	if fit == nil || fit.Model == nil {
		return eval, nil
	}

	if fit.Levels != nil && eval.Points > 0 {
		var below, above int
		for _, v := range values {
			if math.IsNaN(v) {
				continue
			}
			if v <= fit.Levels.Entry {
				below++
			}
			if v >= fit.Levels.Liquidation {
				above++
			}
		}
		eval.BelowEntry = float64(below) / float64(eval.Points)
		eval.AboveExit = float64(above) / float64(eval.Points)
	}

	// 与 Fit.ZScores 同一尺度 (x - θ) / σ
	if last, ok := s.Last(); ok {
		if z, err := ou.ZScore(last.Value, fit.Model.Theta, fit.Model.Sigma); err == nil {
			eval.LastZ = z
		}
	}

	return eval, nil
}
