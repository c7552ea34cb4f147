package ou

import (
	"fmt"
)

// ZScoreLevels 交易水平相对长期均值的标准化距离
type ZScoreLevels struct {
	EntryZ float64 `json:"entry_z"`
	ExitZ  float64 `json:"exit_z"`
}

// ZScores 计算 (level - theta) / sigma
func ZScores(theta, sigma, entry, exit float64) (ZScoreLevels, error) {
	entryZ, err := ZScore(entry, theta, sigma)
	if err != nil {
		return ZScoreLevels{}, err
	}
	exitZ, _ := ZScore(exit, theta, sigma)
	return ZScoreLevels{EntryZ: entryZ, ExitZ: exitZ}, nil
}

// ZScore 单个 spread 值的标准化距离 (x - theta) / sigma
// 与 ZScores 同一尺度，测试窗口的最新值与进场 / 平仓 z 可以直接比较
func ZScore(x, theta, sigma float64) (float64, error) {
	if !(sigma > 0) {
		return 0, fmt.Errorf("%w: sigma must be > 0, got %v", ErrInvalidParameter, sigma)
	}
	return (x - theta) / sigma, nil
}
