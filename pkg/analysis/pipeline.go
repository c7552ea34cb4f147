package analysis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
)

// Pipeline 对每个品种对执行 train → retrain → test
type Pipeline struct {
	source  market.Source
	windows Windows
	opts    FitOptions
	sinks   []Sink
}

// NewPipeline creates a pipeline reading prices from source
func NewPipeline(source market.Source, windows Windows, opts FitOptions, sinks ...Sink) *Pipeline {
	return &Pipeline{
		source:  source,
		windows: windows,
		opts:    opts,
		sinks:   sinks,
	}
}

// Run 分析一个品种对
// 步骤：
//  1. 拉取两条腿覆盖全部窗口的价格
//  2. 构建各窗口的 spread
//  3. 训练窗口拟合
//  4. 再训练窗口拟合
//  5. 测试窗口评估
//  6. 推送结果到各 sink
func (p *Pipeline) Run(ctx context.Context, pair Pair) (*Result, error) {
	result := &Result{
		RunID:     uuid.New(),
		Pair:      pair,
		StartedAt: time.Now(),
	}

	// 1. Fetch
	start, end := p.windows.span()
	log.Printf("[Analysis] [1/6] %s: fetching prices %s ~ %s from %s",
		pair, start.Format(market.DateLayout), end.Format(market.DateLayout), p.source.Name())
	a, err := p.source.Fetch(ctx, pair.A, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pair.A, err)
	}
	b, err := p.source.Fetch(ctx, pair.B, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pair.B, err)
	}

	// 2. Spreads
	log.Printf("[Analysis] [2/6] %s: building spreads", pair)
	trainSpread, err := buildWindow(a, b, p.windows.Train)
	if err != nil {
		return nil, err
	}
	result.TrainSpread = trainSpread

	// 3. Train
	log.Printf("[Analysis] [3/6] %s: fitting train window (%d points)", pair, trainSpread.Len())
	result.Train, err = FitSpread(trainSpread, p.windows.Train, p.opts)
	if err != nil {
		return nil, fmt.Errorf("train window: %w", err)
	}
	logFit(pair, "train", result.Train)

	// 4. Retrain
	if !p.windows.Retrain.IsZero() {
		log.Printf("[Analysis] [4/6] %s: refitting on retrain window", pair)
		retrainSpread, err := buildWindow(a, b, p.windows.Retrain)
		if err != nil {
			return nil, err
		}
		result.Retrain, err = FitSpread(retrainSpread, p.windows.Retrain, p.opts)
		if err != nil {
			return nil, fmt.Errorf("retrain window: %w", err)
		}
		logFit(pair, "retrain", result.Retrain)
	} else {
		log.Printf("[Analysis] [4/6] %s: no retrain window, skipping", pair)
	}

	// 5. Test
	if !p.windows.Test.IsZero() {
		log.Printf("[Analysis] [5/6] %s: evaluating test window", pair)
		testA := a.Range(p.windows.Test.Start, p.windows.Test.End)
		testB := b.Range(p.windows.Test.Start, p.windows.Test.End)
		testSpread, err := buildWindow(a, b, p.windows.Test)
		if err != nil {
			return nil, err
		}
		result.Test, err = Evaluate(testA, testB, testSpread, p.windows.Test, result.Active())
		if err != nil {
			return nil, fmt.Errorf("test window: %w", err)
		}
		log.Printf("[Analysis] %s: test correlation=%.4f, last z=%.2f",
			pair, result.Test.Correlation, result.Test.LastZ)
	} else {
		log.Printf("[Analysis] [5/6] %s: no test window, skipping", pair)
	}

	result.FinishedAt = time.Now()

	// 6. Sinks
	log.Printf("[Analysis] [6/6] %s: publishing to %d sink(s)", pair, len(p.sinks))
	p.publish(ctx, result)

	return result, nil
}

// RunAll 并发分析多个品种对，workers 限制并发数
// 单个品种对失败不会中断其他品种对，失败原因记录在 Result.Error；
// 只有 ctx 被取消时返回错误。结果顺序与 pairs 一致
func (p *Pipeline) RunAll(ctx context.Context, pairs []Pair, workers int) ([]*Result, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]*Result, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, pair := range pairs {
		g.Go(func() error {
			res, err := p.Run(gctx, pair)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("[Analysis] ✗ %s failed: %v", pair, err)
				now := time.Now()
				res = &Result{
					RunID:      uuid.New(),
					Pair:       pair,
					StartedAt:  now,
					FinishedAt: now,
					Error:      err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) publish(ctx context.Context, result *Result) {
	for _, sink := range p.sinks {
		if err := sink.Consume(ctx, result); err != nil {
			log.Printf("[Analysis] Warning: sink %s failed for %s: %v", sink.Name(), result.Pair, err)
		}
	}
}

func buildWindow(a, b *market.PriceSeries, w Window) (*spread.Series, error) {
	s, err := spread.Build(a.Range(w.Start, w.End), b.Range(w.Start, w.End))
	if err != nil {
		return nil, fmt.Errorf("%s window: %w", w.Name, err)
	}
	return s, nil
}

func logFit(pair Pair, stage string, fit *Fit) {
	prm := fit.Params
	log.Printf("[Analysis] %s %s: mu=%.4f theta=%.4f sigma=%.5f R²=%.4f mean_reverting=%v",
		pair, stage, prm.Mu, prm.Theta, prm.Sigma, prm.RSquared, prm.MeanReverting)
	if fit.Model != nil {
		log.Printf("[Analysis] %s %s: kappa=%.4f half_life=%.1f periods", pair, stage, fit.Model.Kappa, fit.Model.HalfLifePeriods())
	}
	if fit.Levels != nil && fit.ZScores != nil {
		log.Printf("[Analysis] %s %s: entry=%.4f (%.2fσ) exit=%.4f (%.2fσ)",
			pair, stage, fit.Levels.Entry, fit.ZScores.EntryZ, fit.Levels.Liquidation, fit.ZScores.ExitZ)
	}
	for _, note := range fit.Notes {
		log.Printf("[Analysis] %s %s: %s", pair, stage, note)
	}
}
