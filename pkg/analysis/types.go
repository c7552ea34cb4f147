// Package analysis runs the train → retrain → test OU workflow for spread pairs
package analysis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/spread"
)

// Pair 品种对，spread = log(A) - log(B)
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// String returns "A/B"
func (p Pair) String() string {
	return p.A + "/" + p.B
}

// Window 分析窗口 [Start, End]
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero 窗口未配置
func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Windows 一次分析的三个窗口，Retrain 与 Test 可以为空
type Windows struct {
	Train   Window
	Retrain Window
	Test    Window
}

// span 覆盖所有已配置窗口的最小区间
func (w Windows) span() (time.Time, time.Time) {
	start, end := w.Train.Start, w.Train.End
	for _, win := range []Window{w.Retrain, w.Test} {
		if win.IsZero() {
			continue
		}
		if win.Start.Before(start) {
			start = win.Start
		}
		if win.End.After(end) {
			end = win.End
		}
	}
	return start, end
}

// FitOptions 拟合参数
type FitOptions struct {
	Dt          float64 // 一个观测周期对应的年数
	MuTolerance float64
	Costs       ou.LevelCosts
	StopLoss    *float64 // 非 nil 时额外求解带止损的水平
}

// DefaultFitOptions 日频数据，默认折现率与交易成本
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Dt:          1.0 / 252,
		MuTolerance: ou.DefaultMuTolerance,
		Costs:       ou.DefaultLevelCosts(),
	}
}

// Fit 单个窗口上的拟合结果
// Model / Levels / ZScores / StopLossLevels 在无法得到时为 nil，原因记录在 Notes
type Fit struct {
	Window         Window              `json:"window"`
	Spread         spread.Summary      `json:"spread"`
	Params         ou.Params           `json:"params"`
	Model          *ou.ContinuousModel `json:"model,omitempty"`
	Levels         *ou.Levels          `json:"levels,omitempty"`
	ZScores        *ou.ZScoreLevels    `json:"zscores,omitempty"`
	StopLossLevels *ou.StopLossLevels  `json:"stop_loss_levels,omitempty"`
	Notes          []string            `json:"notes,omitempty"`
}

// Evaluation 测试窗口相对再训练模型的表现
type Evaluation struct {
	Window      Window         `json:"window"`
	Spread      spread.Summary `json:"spread"`
	Correlation float64        `json:"correlation"` // 两腿对数价格相关系数
	BelowEntry  float64        `json:"below_entry"` // spread <= 进场水平的占比
	AboveExit   float64        `json:"above_exit"`  // spread >= 平仓水平的占比
	LastZ       float64        `json:"last_z"`      // 最后一个点的 (x - θ) / σ，与进场 / 平仓 z 同尺度
	Points      int            `json:"points"`
}

// Result 一个品种对的完整分析结果
type Result struct {
	RunID      uuid.UUID   `json:"run_id"`
	Pair       Pair        `json:"pair"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Train      *Fit        `json:"train,omitempty"`
	Retrain    *Fit        `json:"retrain,omitempty"`
	Test       *Evaluation `json:"test,omitempty"`
	Error      string      `json:"error,omitempty"`

	// TrainSpread 训练窗口的 spread 序列，供报告输出，不参与序列化
	TrainSpread *spread.Series `json:"-"`
}

// Active 用于测试窗口评估的拟合：优先再训练结果
func (r *Result) Active() *Fit {
	if r.Retrain != nil {
		return r.Retrain
	}
	return r.Train
}

// Failed 是否失败
func (r *Result) Failed() bool {
	return r.Error != ""
}

// Sink 接收分析结果（存储、消息总线、报告）
type Sink interface {
	Name() string
	Consume(ctx context.Context, result *Result) error
}
