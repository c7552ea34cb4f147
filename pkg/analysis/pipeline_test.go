package analysis

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/stats"
)

func day(s string) time.Time {
	t, err := time.Parse(market.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testWindows() Windows {
	return Windows{
		Train:   Window{Name: "train", Start: day("2021-01-01"), End: day("2022-12-31")},
		Retrain: Window{Name: "retrain", Start: day("2023-01-01"), End: day("2023-12-31")},
		Test:    Window{Name: "test", Start: day("2024-01-01"), End: day("2024-06-30")},
	}
}

func testSource(pairs ...[2]string) *market.SyntheticSource {
	return market.NewSyntheticSource(market.SyntheticConfig{
		Start:      day("2021-01-01"),
		End:        day("2024-06-30"),
		Mu:         0.2,
		Theta:      0.1,
		NoiseStd:   0.01,
		BasePrice:  50,
		Volatility: 0.01,
		Seed:       42,
	}, pairs)
}

type recordingSink struct {
	mu      sync.Mutex
	results []*Result
	fail    bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Consume(ctx context.Context, r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func TestPipeline_Run(t *testing.T) {
	sink := &recordingSink{}
	p := NewPipeline(testSource([2]string{"AAA", "BBB"}), testWindows(), DefaultFitOptions(), sink)

	result, err := p.Run(context.Background(), Pair{A: "AAA", B: "BBB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Train == nil || result.Retrain == nil || result.Test == nil {
		t.Fatalf("missing stages: %+v", result)
	}
	if result.Active() != result.Retrain {
		t.Error("Active() should prefer the retrain fit")
	}

	prm := result.Train.Params
	if !prm.MeanReverting {
		t.Errorf("train fit not mean reverting: %+v", prm)
	}
	if math.Abs(prm.Mu-0.2) > 0.1 {
		t.Errorf("Mu = %v, want ≈0.2", prm.Mu)
	}
	if math.Abs(prm.Theta-0.1) > 0.01 {
		t.Errorf("Theta = %v, want ≈0.1", prm.Theta)
	}
	if result.Train.Model == nil {
		t.Fatalf("no continuous model: %v", result.Train.Notes)
	}
	if result.Train.Levels != nil {
		if result.Train.ZScores == nil {
			t.Error("levels without z-scores")
		}
		if result.Train.Levels.Entry >= result.Train.Levels.Liquidation {
			t.Errorf("Entry %v >= Liquidation %v", result.Train.Levels.Entry, result.Train.Levels.Liquidation)
		}
	}

	if result.Test.Points == 0 {
		t.Error("test window evaluated no points")
	}
	if result.TrainSpread == nil || result.TrainSpread.Name() != "AAA/BBB" {
		t.Error("train spread not attached")
	}
	if !result.FinishedAt.After(result.StartedAt) && !result.FinishedAt.Equal(result.StartedAt) {
		t.Error("FinishedAt before StartedAt")
	}

	if len(sink.results) != 1 || sink.results[0] != result {
		t.Errorf("sink received %d results", len(sink.results))
	}
}

func TestPipeline_OptionalWindows(t *testing.T) {
	w := testWindows()
	w.Retrain = Window{}
	w.Test = Window{}

	p := NewPipeline(testSource([2]string{"AAA", "BBB"}), w, DefaultFitOptions())
	result, err := p.Run(context.Background(), Pair{A: "AAA", B: "BBB"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Retrain != nil || result.Test != nil {
		t.Error("unconfigured windows must be skipped")
	}
	if result.Active() != result.Train {
		t.Error("Active() should fall back to train")
	}
}

func TestPipeline_SinkFailureIsNotFatal(t *testing.T) {
	sink := &recordingSink{fail: true}
	p := NewPipeline(testSource([2]string{"AAA", "BBB"}), testWindows(), DefaultFitOptions(), sink)

	if _, err := p.Run(context.Background(), Pair{A: "AAA", B: "BBB"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(sink.results) != 1 {
		t.Errorf("sink calls = %d, want 1", len(sink.results))
	}
}

func TestPipeline_RunAll(t *testing.T) {
	src := testSource([2]string{"AAA", "BBB"}, [2]string{"CCC", "DDD"})
	p := NewPipeline(src, testWindows(), DefaultFitOptions())

	pairs := []Pair{
		{A: "AAA", B: "BBB"},
		{A: "CCC", B: "ZZZ"},
		{A: "CCC", B: "DDD"},
	}
	results, err := p.RunAll(context.Background(), pairs, 2)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	for i, r := range results {
		if r.Pair != pairs[i] {
			t.Errorf("results[%d].Pair = %v, want %v", i, r.Pair, pairs[i])
		}
	}
	if results[0].Failed() || results[2].Failed() {
		t.Errorf("valid pairs failed: %q / %q", results[0].Error, results[2].Error)
	}
	if !results[1].Failed() || !strings.Contains(results[1].Error, "ZZZ") {
		t.Errorf("unknown leg should fail, got %q", results[1].Error)
	}
	if results[0].RunID == results[2].RunID {
		t.Error("run IDs must be unique")
	}
}

func TestPipeline_RunAllCancelled(t *testing.T) {
	p := NewPipeline(cancelledSource{}, testWindows(), DefaultFitOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.RunAll(ctx, []Pair{{A: "AAA", B: "BBB"}}, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("RunAll() error = %v, want context.Canceled", err)
	}
}

type cancelledSource struct{}

func (cancelledSource) Name() string { return "cancelled" }

func (cancelledSource) Fetch(ctx context.Context, symbol string, start, end time.Time) (*market.PriceSeries, error) {
	return nil, ctx.Err()
}

func TestFitSpread_NonMeanReverting(t *testing.T) {
	// x[t] = 1.05·x[t-1]：可以回归，但没有连续模型
	values := make([]float64, 50)
	values[0] = 1
	for i := 1; i < len(values); i++ {
		values[i] = values[i-1] * 1.05
	}

	fit, err := FitSpread(spread.FromValues(values), Window{Name: "train"}, DefaultFitOptions())
	if err != nil {
		t.Fatalf("FitSpread() error = %v", err)
	}
	if fit.Params.MeanReverting {
		t.Error("MeanReverting = true")
	}
	if fit.Model != nil || fit.Levels != nil || fit.ZScores != nil {
		t.Error("explosive fit must not produce a continuous model")
	}
	if len(fit.Notes) < 2 {
		t.Errorf("Notes = %v", fit.Notes)
	}
}

func TestFitSpread_Degenerate(t *testing.T) {
	_, err := FitSpread(spread.FromValues([]float64{1, 1, 1, 1}), Window{}, DefaultFitOptions())
	if !errors.Is(err, ou.ErrDegenerateFit) {
		t.Errorf("error = %v, want ErrDegenerateFit", err)
	}
}

func TestFitSpread_StopLoss(t *testing.T) {
	s := spread.FromValues(stats.NewAR1FromOU(0.3, 0, 0.05, 0).Generate(200, 5))
	base, err := FitSpread(s, Window{Name: "train"}, DefaultFitOptions())
	if err != nil || base.Model == nil || base.Levels == nil {
		t.Fatalf("FitSpread() = %+v, %v", base, err)
	}
	if base.StopLossLevels != nil {
		t.Error("StopLossLevels must be nil without a stop-loss")
	}
	stdDev := base.Model.Sigma / math.Sqrt(2*base.Model.Kappa)

	t.Run("Stop above theta is a note", func(t *testing.T) {
		opts := DefaultFitOptions()
		stop := base.Model.Theta + stdDev
		opts.StopLoss = &stop

		fit, err := FitSpread(s, Window{Name: "train"}, opts)
		if err != nil {
			t.Fatal(err)
		}
		if fit.StopLossLevels != nil {
			t.Errorf("StopLossLevels = %+v, want nil", fit.StopLossLevels)
		}
		if fit.Levels == nil || fit.ZScores == nil {
			t.Error("stop-loss failure must not drop the unconstrained levels")
		}
		found := false
		for _, n := range fit.Notes {
			if strings.Contains(n, "stop-loss") {
				found = true
			}
		}
		if !found {
			t.Errorf("Notes = %v", fit.Notes)
		}
	})

	t.Run("Unreachable stop keeps unconstrained levels", func(t *testing.T) {
		opts := DefaultFitOptions()
		stop := base.Model.Theta - 40*stdDev
		opts.StopLoss = &stop

		fit, err := FitSpread(s, Window{Name: "train"}, opts)
		if err != nil {
			t.Fatal(err)
		}
		sl := fit.StopLossLevels
		if sl == nil {
			t.Fatalf("StopLossLevels = nil, notes %v", fit.Notes)
		}
		if sl.StopLoss != stop || sl.EntryLower != stop {
			t.Errorf("StopLossLevels = %+v, want stop %v", sl, stop)
		}
		if sl.EntryUpper != base.Levels.Entry || sl.Liquidation != base.Levels.Liquidation {
			t.Errorf("StopLossLevels = %+v, want %+v", sl, base.Levels)
		}
	})
}

func TestEvaluate(t *testing.T) {
	values := stats.NewAR1FromOU(0.3, 0, 0.05, 0).Generate(200, 5)
	s := spread.FromValues(values)
	fit := &Fit{
		Model:  &ou.ContinuousModel{Kappa: 10, Theta: 0, Sigma: 0.2, Dt: 1.0 / 252},
		Levels: &ou.Levels{Entry: -0.05, Liquidation: 0.05},
	}

	a := market.NewPriceSeries("A", []market.Point{{Time: day("2024-01-01"), Price: 1}, {Time: day("2024-01-02"), Price: 2}})
	b := market.NewPriceSeries("B", []market.Point{{Time: day("2024-01-01"), Price: 2}, {Time: day("2024-01-02"), Price: 4}})

	eval, err := Evaluate(a, b, s, Window{Name: "test"}, fit)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if eval.Points != 200 {
		t.Errorf("Points = %d, want 200", eval.Points)
	}
	if eval.BelowEntry <= 0 || eval.AboveExit <= 0 || eval.BelowEntry+eval.AboveExit > 1 {
		t.Errorf("BelowEntry/AboveExit = %v/%v", eval.BelowEntry, eval.AboveExit)
	}
	if math.Abs(eval.Correlation-1) > 1e-12 {
		t.Errorf("Correlation = %v, want 1", eval.Correlation)
	}
	want := values[len(values)-1] / fit.Model.Sigma
	if math.Abs(eval.LastZ-want) > 1e-12 {
		t.Errorf("LastZ = %v, want %v", eval.LastZ, want)
	}
}

func TestEvaluate_LastZMatchesLevelScale(t *testing.T) {
	model := ou.ContinuousModel{Kappa: 10, Theta: 0.1, Sigma: 0.2, Dt: 1.0 / 252}
	levels := ou.Levels{Entry: 0.02, Liquidation: 0.15}
	z, err := ou.ZScores(model.Theta, model.Sigma, levels.Entry, levels.Liquidation)
	if err != nil {
		t.Fatal(err)
	}
	fit := &Fit{Model: &model, Levels: &levels, ZScores: &z}

	// 最后一个点恰好落在进场水平上
	s := spread.FromValues([]float64{0.1, 0.12, 0.02})
	a := market.NewPriceSeries("A", []market.Point{{Time: day("2024-01-01"), Price: 1}, {Time: day("2024-01-02"), Price: 2}})
	b := market.NewPriceSeries("B", []market.Point{{Time: day("2024-01-01"), Price: 2}, {Time: day("2024-01-02"), Price: 3}})
	eval, err := Evaluate(a, b, s, Window{Name: "test"}, fit)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if eval.LastZ != fit.ZScores.EntryZ {
		t.Errorf("LastZ = %v, want EntryZ %v", eval.LastZ, fit.ZScores.EntryZ)
	}
}
