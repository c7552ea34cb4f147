package wire

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestFitRequest_Binary(t *testing.T) {
	req := FitRequest{
		A:              "GLD",
		B:              "SIL",
		Times:          []time.Time{day(0), day(1), day(2)},
		PricesA:        []float64{180, math.NaN(), 182},
		PricesB:        []float64{22, 23, 24},
		PeriodsPerYear: 252,
		Costs:          &ou.LevelCosts{EntryRate: 0.05, ExitRate: 0.05, EntryCost: 0.02, ExitCost: 0.01},
	}

	s, err := EncodeFitRequest(req)
	if err != nil {
		t.Fatalf("EncodeFitRequest() error = %v", err)
	}
	data, err := Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	decodedStruct, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeFitRequest(decodedStruct)
	if err != nil {
		t.Fatalf("DecodeFitRequest() error = %v", err)
	}

	if got.A != "GLD" || got.B != "SIL" || len(got.Times) != 3 {
		t.Fatalf("decoded %+v", got)
	}
	if !got.Times[2].Equal(day(2)) {
		t.Errorf("Times[2] = %v", got.Times[2])
	}
	if !math.IsNaN(got.PricesA[1]) || got.PricesA[2] != 182 {
		t.Errorf("PricesA = %v", got.PricesA)
	}
	if got.Costs == nil || got.Costs.ExitCost != 0.01 || got.PeriodsPerYear != 252 {
		t.Errorf("options lost: %+v %v", got.Costs, got.PeriodsPerYear)
	}

	a, b, err := got.Series()
	if err != nil {
		t.Fatalf("Series() error = %v", err)
	}
	if a.MissingCount() != 1 || b.Len() != 3 {
		t.Errorf("series %d missing / %d points", a.MissingCount(), b.Len())
	}
}

func TestDecodeFitRequest_Malformed(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]any
	}{
		{"Missing leg", map[string]any{"b": "SIL", "dates": []any{}, "a_close": []any{}, "b_close": []any{}}},
		{"Dates not list", map[string]any{"a": "A", "b": "B", "dates": "2024-01-01"}},
		{"Bad date", map[string]any{"a": "A", "b": "B", "dates": []any{"01/02/2024"}, "a_close": []any{1.0}, "b_close": []any{1.0}}},
		{"String price", map[string]any{"a": "A", "b": "B", "dates": []any{"2024-01-01"}, "a_close": []any{"1"}, "b_close": []any{1.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := structpb.NewStruct(tt.m)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := DecodeFitRequest(s); !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestFitRequest_SeriesLengthMismatch(t *testing.T) {
	r := FitRequest{A: "A", B: "B", Times: []time.Time{day(0)}, PricesA: []float64{1, 2}, PricesB: []float64{1}}
	if _, _, err := r.Series(); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestFit_Codec(t *testing.T) {
	fit := &analysis.Fit{
		Window:         analysis.Window{Name: "train", Start: day(0), End: day(30)},
		Params:         ou.Params{Mu: 0.1, Theta: 0.5, Sigma: 0.02, Beta1: 0.9, Pairs: 30, MeanReverting: true},
		Model:          &ou.ContinuousModel{Kappa: 26.5, Theta: 0.5, Sigma: 0.3, Dt: 1.0 / 252},
		Levels:         &ou.Levels{Entry: 0.45, Liquidation: 0.55},
		ZScores:        &ou.ZScoreLevels{EntryZ: -0.1667, ExitZ: 0.1667},
		StopLossLevels: &ou.StopLossLevels{StopLoss: 0.3, EntryLower: 0.36, EntryUpper: 0.45, Liquidation: 0.54},
		Notes:          []string{"note"},
	}

	s, err := EncodeFit(fit)
	if err != nil {
		t.Fatalf("EncodeFit() error = %v", err)
	}
	got, err := DecodeFit(s)
	if err != nil {
		t.Fatalf("DecodeFit() error = %v", err)
	}

	if got.Params != fit.Params {
		t.Errorf("Params = %+v, want %+v", got.Params, fit.Params)
	}
	if *got.Model != *fit.Model || *got.Levels != *fit.Levels || *got.ZScores != *fit.ZScores {
		t.Error("model / levels / zscores changed")
	}
	if got.StopLossLevels == nil || *got.StopLossLevels != *fit.StopLossLevels {
		t.Errorf("StopLossLevels = %+v, want %+v", got.StopLossLevels, fit.StopLossLevels)
	}
	if got.Window.Name != "train" || !got.Window.End.Equal(day(30)) {
		t.Errorf("Window = %+v", got.Window)
	}
	if len(got.Notes) != 1 {
		t.Errorf("Notes = %v", got.Notes)
	}
}

func TestDecodeFit_PartialFit(t *testing.T) {
	s, err := EncodeFit(&analysis.Fit{Params: ou.Params{Mu: 2.5}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeFit(s)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != nil || got.Levels != nil || got.ZScores != nil || got.StopLossLevels != nil {
		t.Error("absent sections must decode as nil")
	}
}

func TestEncodeResult(t *testing.T) {
	id := uuid.New()
	s, err := EncodeResult(&analysis.Result{
		RunID: id,
		Pair:  analysis.Pair{A: "GLD", B: "SIL"},
		Train: &analysis.Fit{Params: ou.Params{Mu: 0.1}},
		Test:  &analysis.Evaluation{Points: 80, LastZ: 1.5},
	})
	if err != nil {
		t.Fatalf("EncodeResult() error = %v", err)
	}

	m := s.AsMap()
	if m["run_id"] != id.String() || m["pair"] != "GLD/SIL" {
		t.Errorf("header = %v / %v", m["run_id"], m["pair"])
	}
	test, ok := m["test"].(map[string]any)
	if !ok || test["points"] != 80.0 || test["last_z"] != 1.5 {
		t.Errorf("test = %v", m["test"])
	}
	if _, ok := m["retrain"]; ok {
		t.Error("nil retrain must be omitted")
	}
}

func TestEstimateRequestReply(t *testing.T) {
	tol := 1e-6
	s, err := EncodeEstimateRequest(EstimateRequest{Values: []float64{1, math.NaN(), 2}, MuTolerance: &tol})
	if err != nil {
		t.Fatal(err)
	}
	req, err := DecodeEstimateRequest(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Values) != 3 || !math.IsNaN(req.Values[1]) || req.MuTolerance == nil || *req.MuTolerance != 1e-6 {
		t.Errorf("request = %+v", req)
	}

	reply, err := EncodeEstimateReply(ou.Params{Mu: 0.3, Pairs: 10, MeanReverting: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeEstimateReply(reply)
	if err != nil || p.Mu != 0.3 || p.Pairs != 10 || !p.MeanReverting {
		t.Errorf("reply = %+v, %v", p, err)
	}

	reply, err = EncodeEstimateReply(ou.Params{}, ou.ErrDegenerateFit)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeEstimateReply(reply); err == nil || err.Error() != ou.ErrDegenerateFit.Error() {
		t.Errorf("error = %v, want %v", err, ou.ErrDegenerateFit)
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xff, 0xff, 0xff}); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestDecodeEstimateRequest_MuTolerance(t *testing.T) {
	zero := 0.0
	s, err := EncodeEstimateRequest(EstimateRequest{Values: []float64{1, 2, 3}, MuTolerance: &zero})
	if err != nil {
		t.Fatal(err)
	}
	req, err := DecodeEstimateRequest(s)
	if err != nil {
		t.Fatal(err)
	}
	if req.MuTolerance == nil || *req.MuTolerance != 0 {
		t.Errorf("explicit 0 lost: %v", req.MuTolerance)
	}

	s, _ = EncodeEstimateRequest(EstimateRequest{Values: []float64{1, 2, 3}})
	if req, err := DecodeEstimateRequest(s); err != nil || req.MuTolerance != nil {
		t.Errorf("absent mu_tolerance = %v, %v, want nil", req.MuTolerance, err)
	}

	for _, bad := range []any{-1e-6, "small"} {
		s, err := structpb.NewStruct(map[string]any{"values": []any{1.0, 2.0}, "mu_tolerance": bad})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := DecodeEstimateRequest(s); !errors.Is(err, ErrMalformed) {
			t.Errorf("mu_tolerance=%v: error = %v, want ErrMalformed", bad, err)
		}
	}
}
