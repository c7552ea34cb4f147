// Package wire encodes analysis payloads as protobuf Struct messages
// shared by the NATS bus and the gRPC Estimator service
package wire

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
)

// ErrMalformed 消息缺少字段或类型不符
var ErrMalformed = errors.New("malformed message")

// Marshal encodes a Struct to protobuf binary
func Marshal(s *structpb.Struct) ([]byte, error) {
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}
	return data, nil
}

// Unmarshal decodes protobuf binary into a Struct
func Unmarshal(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// FitRequest 两条腿的价格，按 Times 对齐；NaN 表示缺失
type FitRequest struct {
	A       string
	B       string
	Times   []time.Time
	PricesA []float64
	PricesB []float64

	// 可选，零值时使用服务端默认
	PeriodsPerYear float64
	Costs          *ou.LevelCosts
}

// Series 构造两条腿的价格序列
func (r FitRequest) Series() (*market.PriceSeries, *market.PriceSeries, error) {
	if len(r.PricesA) != len(r.Times) || len(r.PricesB) != len(r.Times) {
		return nil, nil, fmt.Errorf("%w: %d times, %d/%d prices",
			ErrMalformed, len(r.Times), len(r.PricesA), len(r.PricesB))
	}
	pa := make([]market.Point, len(r.Times))
	pb := make([]market.Point, len(r.Times))
	for i, t := range r.Times {
		pa[i] = market.Point{Time: t, Price: r.PricesA[i]}
		pb[i] = market.Point{Time: t, Price: r.PricesB[i]}
	}
	return market.NewPriceSeries(r.A, pa), market.NewPriceSeries(r.B, pb), nil
}

// EncodeFitRequest builds the request Struct
func EncodeFitRequest(r FitRequest) (*structpb.Struct, error) {
	dates := make([]any, len(r.Times))
	for i, t := range r.Times {
		dates[i] = t.Format(market.DateLayout)
	}
	m := map[string]any{
		"a":       r.A,
		"b":       r.B,
		"dates":   dates,
		"a_close": floatList(r.PricesA),
		"b_close": floatList(r.PricesB),
	}
	if r.PeriodsPerYear > 0 {
		m["periods_per_year"] = r.PeriodsPerYear
	}
	if r.Costs != nil {
		m["costs"] = map[string]any{
			"entry_rate": r.Costs.EntryRate,
			"exit_rate":  r.Costs.ExitRate,
			"entry_cost": r.Costs.EntryCost,
			"exit_cost":  r.Costs.ExitCost,
		}
	}
	return newStruct(m)
}

// DecodeFitRequest parses the request Struct
func DecodeFitRequest(s *structpb.Struct) (FitRequest, error) {
	m := s.AsMap()
	var r FitRequest
	var err error

	if r.A, err = str(m, "a"); err != nil {
		return r, err
	}
	if r.B, err = str(m, "b"); err != nil {
		return r, err
	}

	rawDates, ok := m["dates"].([]any)
	if !ok {
		return r, fmt.Errorf("%w: dates must be a list", ErrMalformed)
	}
	r.Times = make([]time.Time, len(rawDates))
	for i, v := range rawDates {
		d, ok := v.(string)
		if !ok {
			return r, fmt.Errorf("%w: dates[%d] must be a string", ErrMalformed, i)
		}
		if r.Times[i], err = time.Parse(market.DateLayout, d); err != nil {
			return r, fmt.Errorf("%w: dates[%d]: %v", ErrMalformed, i, err)
		}
	}

	if r.PricesA, err = floats(m, "a_close"); err != nil {
		return r, err
	}
	if r.PricesB, err = floats(m, "b_close"); err != nil {
		return r, err
	}
	if v, ok := m["periods_per_year"].(float64); ok {
		r.PeriodsPerYear = v
	}
	if c, ok := m["costs"].(map[string]any); ok {
		r.Costs = &ou.LevelCosts{
			EntryRate: num(c, "entry_rate"),
			ExitRate:  num(c, "exit_rate"),
			EntryCost: num(c, "entry_cost"),
			ExitCost:  num(c, "exit_cost"),
		}
	}
	return r, nil
}

// EncodeFit builds the Struct for a single-window fit
func EncodeFit(f *analysis.Fit) (*structpb.Struct, error) {
	return newStruct(fitMap(f))
}

// DecodeFit parses a fit Struct
func DecodeFit(s *structpb.Struct) (*analysis.Fit, error) {
	return fitFromMap(s.AsMap())
}

// EncodeResult builds the Struct published for a pair result
func EncodeResult(r *analysis.Result) (*structpb.Struct, error) {
	m := map[string]any{
		"run_id":      r.RunID.String(),
		"pair":        r.Pair.String(),
		"a":           r.Pair.A,
		"b":           r.Pair.B,
		"started_at":  r.StartedAt.UTC().Format(time.RFC3339Nano),
		"finished_at": r.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Train != nil {
		m["train"] = fitMap(r.Train)
	}
	if r.Retrain != nil {
		m["retrain"] = fitMap(r.Retrain)
	}
	if t := r.Test; t != nil {
		m["test"] = map[string]any{
			"window":      windowMap(t.Window),
			"correlation": t.Correlation,
			"below_entry": t.BelowEntry,
			"above_exit":  t.AboveExit,
			"last_z":      t.LastZ,
			"points":      float64(t.Points),
		}
	}
	return newStruct(m)
}

// EstimateRequest 仅做离散回归的请求，Values 中 NaN 表示缺失
// MuTolerance 为 nil 时使用服务端默认；显式 0 表示只拒绝 mu == 0
type EstimateRequest struct {
	Values      []float64
	MuTolerance *float64
}

// EncodeEstimateRequest builds the request Struct
func EncodeEstimateRequest(r EstimateRequest) (*structpb.Struct, error) {
	m := map[string]any{"values": floatList(r.Values)}
	if r.MuTolerance != nil {
		m["mu_tolerance"] = *r.MuTolerance
	}
	return newStruct(m)
}

// DecodeEstimateRequest parses the request Struct
func DecodeEstimateRequest(s *structpb.Struct) (EstimateRequest, error) {
	m := s.AsMap()
	values, err := floats(m, "values")
	if err != nil {
		return EstimateRequest{}, err
	}
	r := EstimateRequest{Values: values}
	if raw, ok := m["mu_tolerance"]; ok {
		v, isNum := raw.(float64)
		if !isNum || !(v >= 0) {
			return EstimateRequest{}, fmt.Errorf("%w: mu_tolerance must be a number >= 0, got %v", ErrMalformed, raw)
		}
		r.MuTolerance = &v
	}
	return r, nil
}

// EncodeEstimateReply builds {"params": {...}} or {"error": "..."}
func EncodeEstimateReply(p ou.Params, estimateErr error) (*structpb.Struct, error) {
	if estimateErr != nil {
		return newStruct(map[string]any{"error": estimateErr.Error()})
	}
	return newStruct(map[string]any{"params": paramsMap(p)})
}

// DecodeEstimateReply parses an estimate reply; a remote failure is returned as error
func DecodeEstimateReply(s *structpb.Struct) (ou.Params, error) {
	m := s.AsMap()
	if msg, ok := m["error"].(string); ok && msg != "" {
		return ou.Params{}, errors.New(msg)
	}
	pm, ok := m["params"].(map[string]any)
	if !ok {
		return ou.Params{}, fmt.Errorf("%w: missing params", ErrMalformed)
	}
	return paramsFromMap(pm), nil
}

func fitMap(f *analysis.Fit) map[string]any {
	m := map[string]any{
		"window": windowMap(f.Window),
		"spread": map[string]any{
			"count":   float64(f.Spread.Count),
			"missing": float64(f.Spread.Missing),
			"mean":    f.Spread.Mean,
			"std":     f.Spread.Std,
			"min":     f.Spread.Min,
			"max":     f.Spread.Max,
			"last":    f.Spread.Last,
			"z_score": f.Spread.ZScore,
		},
		"params": paramsMap(f.Params),
	}
	if f.Model != nil {
		m["model"] = map[string]any{
			"kappa":     f.Model.Kappa,
			"theta":     f.Model.Theta,
			"sigma":     f.Model.Sigma,
			"dt":        f.Model.Dt,
			"half_life": f.Model.HalfLifePeriods(),
		}
	}
	if f.Levels != nil {
		m["levels"] = map[string]any{
			"entry":       f.Levels.Entry,
			"liquidation": f.Levels.Liquidation,
		}
	}
	if sl := f.StopLossLevels; sl != nil {
		m["stop_loss_levels"] = map[string]any{
			"stop_loss":   sl.StopLoss,
			"entry_lower": sl.EntryLower,
			"entry_upper": sl.EntryUpper,
			"liquidation": sl.Liquidation,
		}
	}
	if f.ZScores != nil {
		m["zscores"] = map[string]any{
			"entry_z": f.ZScores.EntryZ,
			"exit_z":  f.ZScores.ExitZ,
		}
	}
	if len(f.Notes) > 0 {
		notes := make([]any, len(f.Notes))
		for i, n := range f.Notes {
			notes[i] = n
		}
		m["notes"] = notes
	}
	return m
}

func fitFromMap(m map[string]any) (*analysis.Fit, error) {
	pm, ok := m["params"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing params", ErrMalformed)
	}
	f := &analysis.Fit{Params: paramsFromMap(pm)}

	if w, ok := m["window"].(map[string]any); ok {
		f.Window.Name, _ = w["name"].(string)
		if v, ok := w["start"].(string); ok {
			f.Window.Start, _ = time.Parse(market.DateLayout, v)
		}
		if v, ok := w["end"].(string); ok {
			f.Window.End, _ = time.Parse(market.DateLayout, v)
		}
	}
	if s, ok := m["spread"].(map[string]any); ok {
		f.Spread.Count = int(num(s, "count"))
		f.Spread.Missing = int(num(s, "missing"))
		f.Spread.Mean = num(s, "mean")
		f.Spread.Std = num(s, "std")
		f.Spread.Min = num(s, "min")
		f.Spread.Max = num(s, "max")
		f.Spread.Last = num(s, "last")
		f.Spread.ZScore = num(s, "z_score")
	}
	if mm, ok := m["model"].(map[string]any); ok {
		f.Model = &ou.ContinuousModel{
			Kappa: num(mm, "kappa"),
			Theta: num(mm, "theta"),
			Sigma: num(mm, "sigma"),
			Dt:    num(mm, "dt"),
		}
	}
	if lm, ok := m["levels"].(map[string]any); ok {
		f.Levels = &ou.Levels{
			Entry:       num(lm, "entry"),
			Liquidation: num(lm, "liquidation"),
		}
	}
	if sm, ok := m["stop_loss_levels"].(map[string]any); ok {
		f.StopLossLevels = &ou.StopLossLevels{
			StopLoss:    num(sm, "stop_loss"),
			EntryLower:  num(sm, "entry_lower"),
			EntryUpper:  num(sm, "entry_upper"),
			Liquidation: num(sm, "liquidation"),
		}
	}
	if zm, ok := m["zscores"].(map[string]any); ok {
		f.ZScores = &ou.ZScoreLevels{
			EntryZ: num(zm, "entry_z"),
			ExitZ:  num(zm, "exit_z"),
		}
	}
	if notes, ok := m["notes"].([]any); ok {
		for _, n := range notes {
			if s, ok := n.(string); ok {
				f.Notes = append(f.Notes, s)
			}
		}
	}
	return f, nil
}

func paramsMap(p ou.Params) map[string]any {
	return map[string]any{
		"mu":             p.Mu,
		"theta":          p.Theta,
		"sigma":          p.Sigma,
		"beta0":          p.Beta0,
		"beta1":          p.Beta1,
		"r_squared":      p.RSquared,
		"pairs":          float64(p.Pairs),
		"mean_reverting": p.MeanReverting,
	}
}

func paramsFromMap(m map[string]any) ou.Params {
	p := ou.Params{
		Mu:       num(m, "mu"),
		Theta:    num(m, "theta"),
		Sigma:    num(m, "sigma"),
		Beta0:    num(m, "beta0"),
		Beta1:    num(m, "beta1"),
		RSquared: num(m, "r_squared"),
		Pairs:    int(num(m, "pairs")),
	}
	p.MeanReverting, _ = m["mean_reverting"].(bool)
	return p
}

func windowMap(w analysis.Window) map[string]any {
	m := map[string]any{"name": w.Name}
	if !w.IsZero() {
		m["start"] = w.Start.Format(market.DateLayout)
		m["end"] = w.End.Format(market.DateLayout)
	}
	return m
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return s, nil
}

// floatList 缺失值编码为 null
func floatList(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return out
}

func floats(m map[string]any, key string) ([]float64, error) {
	raw, ok := m[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list", ErrMalformed, key)
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case nil:
			out[i] = math.NaN()
		case float64:
			out[i] = x
		default:
			return nil, fmt.Errorf("%w: %s[%d] must be a number or null", ErrMalformed, key, i)
		}
	}
	return out, nil
}

func str(m map[string]any, key string) (string, error) {
	v, ok := m[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s is required", ErrMalformed, key)
	}
	return v, nil
}

// num 缺失或非数值时返回 NaN
func num(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return math.NaN()
}
