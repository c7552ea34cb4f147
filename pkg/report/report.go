// Package report writes OU analysis results as markdown, JSON and CSV files
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
)

// 支持的输出格式
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatCSV      = "csv"
)

// Uploader 上传已生成的报告文件（由 blob.Writer 实现）
type Uploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
}

// Generator generates analysis reports in various formats
type Generator struct {
	outputDir string
	formats   []string

	uploader     Uploader
	uploadPrefix string
	keyFunc      func(prefix, name string) string
	contentType  func(name string) string

	now func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithUpload uploads every written file under prefix
// keyFunc / contentType 通常为 blob.ObjectKey / blob.ContentType
func WithUpload(u Uploader, prefix string, keyFunc func(prefix, name string) string, contentType func(name string) string) Option {
	return func(g *Generator) {
		g.uploader = u
		g.uploadPrefix = prefix
		g.keyFunc = keyFunc
		g.contentType = contentType
	}
}

// WithClock overrides the timestamp source used in file names
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a new report generator
func NewGenerator(outputDir string, formats []string, opts ...Option) *Generator {
	g := &Generator{
		outputDir: outputDir,
		formats:   formats,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements analysis.Sink
func (g *Generator) Name() string {
	return "report"
}

// Consume implements analysis.Sink
// 按配置的格式逐一输出，第一个错误即返回
func (g *Generator) Consume(ctx context.Context, result *analysis.Result) error {
	_, err := g.Generate(ctx, result)
	return err
}

// Generate writes every configured format and returns the written paths
func (g *Generator) Generate(ctx context.Context, result *analysis.Result) ([]string, error) {
	var paths []string
	for _, format := range g.formats {
		var (
			path string
			err  error
		)
		switch format {
		case FormatMarkdown:
			path, err = g.GenerateMarkdown(result)
		case FormatJSON:
			path, err = g.GenerateJSON(result)
		case FormatCSV:
			path, err = g.SaveSpread(result)
		default:
			err = fmt.Errorf("unknown report format: %s", format)
		}
		if err != nil {
			return paths, err
		}
		if path == "" {
			continue
		}
		paths = append(paths, path)

		if err := g.upload(ctx, path); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// GenerateMarkdown generates a markdown report
func (g *Generator) GenerateMarkdown(result *analysis.Result) (string, error) {
	filename, err := g.filename(result, "report", "md")
	if err != nil {
		return "", err
	}

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	WriteMarkdown(file, result)

	fmt.Printf("[Report] Markdown report saved: %s\n", filename)
	return filename, nil
}

// GenerateJSON generates a JSON report
func (g *Generator) GenerateJSON(result *analysis.Result) (string, error) {
	filename, err := g.filename(result, "result", "json")
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}

	fmt.Printf("[Report] JSON result saved: %s\n", filename)
	return filename, nil
}

// SaveSpread saves the training spread with its z-score to CSV
// 没有 spread 序列（如失败的结果）时不输出文件
func (g *Generator) SaveSpread(result *analysis.Result) (string, error) {
	if result.TrainSpread == nil {
		return "", nil
	}

	filename, err := g.filename(result, "spread", "csv")
	if err != nil {
		return "", err
	}

	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create spread file: %w", err)
	}
	defer file.Close()

	if err := WriteSpreadCSV(file, result); err != nil {
		return "", err
	}

	fmt.Printf("[Report] Spread saved: %s\n", filename)
	return filename, nil
}

func (g *Generator) filename(result *analysis.Result, kind, ext string) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	timestamp := g.now().Format("20060102_150405")
	name := fmt.Sprintf("ou_%s_%s_%s_%s.%s",
		kind, sanitize(result.Pair.A), sanitize(result.Pair.B), timestamp, ext)
	return filepath.Join(g.outputDir, name), nil
}

func (g *Generator) upload(ctx context.Context, path string) error {
	if g.uploader == nil {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s for upload: %w", path, err)
	}
	defer file.Close()

	name := filepath.Base(path)
	key := g.keyFunc(g.uploadPrefix, name)
	if err := g.uploader.Upload(ctx, key, file, g.contentType(name)); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	fmt.Printf("[Report] Uploaded: %s\n", key)
	return nil
}

// sanitize 品种代码中的 '^'、'=' 等字符不适合作为文件名
func sanitize(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		}
		return '_'
	}, symbol)
}

// WriteMarkdown writes the markdown report content
func WriteMarkdown(w io.Writer, result *analysis.Result) {
	fmt.Fprintf(w, "# OU 均值回复分析报告\n\n")
	fmt.Fprintf(w, "**品种对**: %s (spread = log(%s) - log(%s))\n", result.Pair, result.Pair.A, result.Pair.B)
	fmt.Fprintf(w, "**Run ID**: %s\n\n", result.RunID)
	fmt.Fprintf(w, "---\n\n")

	if result.Failed() {
		fmt.Fprintf(w, "## 错误\n\n")
		fmt.Fprintf(w, "%s\n\n", result.Error)
		writeFooter(w, result)
		return
	}

	// Parameters
	fmt.Fprintf(w, "## OU 参数\n\n")
	fmt.Fprintf(w, "| 指标 | 训练 | 再训练 |\n")
	fmt.Fprintf(w, "|------|------|--------|\n")
	fits := []*analysis.Fit{result.Train, result.Retrain}
	row := func(label string, value func(f *analysis.Fit) string) {
		fmt.Fprintf(w, "| **%s** |", label)
		for _, f := range fits {
			if f == nil {
				fmt.Fprintf(w, " - |")
				continue
			}
			fmt.Fprintf(w, " %s |", value(f))
		}
		fmt.Fprintf(w, "\n")
	}
	row("窗口", func(f *analysis.Fit) string { return windowString(f.Window) })
	row("样本对数", func(f *analysis.Fit) string { return fmt.Sprintf("%d", f.Params.Pairs) })
	row("mu", func(f *analysis.Fit) string { return fmt.Sprintf("%.6f", f.Params.Mu) })
	row("theta", func(f *analysis.Fit) string { return fmt.Sprintf("%.6f", f.Params.Theta) })
	row("sigma (残差)", func(f *analysis.Fit) string { return fmt.Sprintf("%.6f", f.Params.Sigma) })
	row("R²", func(f *analysis.Fit) string { return fmt.Sprintf("%.4f", f.Params.RSquared) })
	row("均值回复", func(f *analysis.Fit) string { return evaluateMu(f.Params.Mu) })
	row("kappa", func(f *analysis.Fit) string { return modelValue(f, func() float64 { return f.Model.Kappa }, "%.4f") })
	row("sigma (模型)", func(f *analysis.Fit) string { return modelValue(f, func() float64 { return f.Model.Sigma }, "%.6f") })
	row("半衰期 (周期)", func(f *analysis.Fit) string {
		return modelValue(f, func() float64 { return f.Model.HalfLifePeriods() }, "%.1f")
	})
	fmt.Fprintf(w, "\n")

	// Levels
	fmt.Fprintf(w, "## 最优进场 / 平仓水平\n\n")
	fmt.Fprintf(w, "| 窗口 | 进场 d* | 平仓 b* | 进场 z (σ) | 平仓 z (σ) |\n")
	fmt.Fprintf(w, "|------|---------|---------|--------|--------|\n")
	for _, f := range fits {
		if f == nil {
			continue
		}
		if f.Levels == nil || f.ZScores == nil {
			fmt.Fprintf(w, "| %s | - | - | - | - |\n", f.Window.Name)
			continue
		}
		fmt.Fprintf(w, "| %s | %.6f | %.6f | %.3f | %.3f |\n",
			f.Window.Name, f.Levels.Entry, f.Levels.Liquidation, f.ZScores.EntryZ, f.ZScores.ExitZ)
	}
	fmt.Fprintf(w, "\n")

	writeStopLoss(w, fits)

	// Test window
	if t := result.Test; t != nil {
		fmt.Fprintf(w, "## 测试窗口 (%s)\n\n", windowString(t.Window))
		fmt.Fprintf(w, "| 指标 | 数值 |\n")
		fmt.Fprintf(w, "|------|------|\n")
		fmt.Fprintf(w, "| **有效点数** | %d |\n", t.Points)
		fmt.Fprintf(w, "| **对数价格相关系数** | %.4f |\n", t.Correlation)
		fmt.Fprintf(w, "| **spread 均值** | %.6f |\n", t.Spread.Mean)
		fmt.Fprintf(w, "| **spread 标准差** | %.6f |\n", t.Spread.Std)
		fmt.Fprintf(w, "| **低于进场水平占比** | %.2f%% |\n", t.BelowEntry*100)
		fmt.Fprintf(w, "| **高于平仓水平占比** | %.2f%% |\n", t.AboveExit*100)
		fmt.Fprintf(w, "| **最新 z-score (σ)** | %.3f |\n\n", t.LastZ)
	}

	// Notes
	var notes []string
	for _, f := range fits {
		if f == nil {
			continue
		}
		for _, n := range f.Notes {
			notes = append(notes, fmt.Sprintf("%s: %s", f.Window.Name, n))
		}
	}
	if len(notes) > 0 {
		fmt.Fprintf(w, "## 备注\n\n")
		for _, n := range notes {
			fmt.Fprintf(w, "- %s\n", n)
		}
		fmt.Fprintf(w, "\n")
	}

	writeFooter(w, result)
}

// writeStopLoss 只有设置了止损且至少一个窗口求解成功时输出
func writeStopLoss(w io.Writer, fits []*analysis.Fit) {
	var rows []*analysis.Fit
	for _, f := range fits {
		if f != nil && f.StopLossLevels != nil {
			rows = append(rows, f)
		}
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintf(w, "## 带止损的最优水平\n\n")
	fmt.Fprintf(w, "| 窗口 | 止损 L | 进场区间 [a*, d*] | 平仓 b*_L |\n")
	fmt.Fprintf(w, "|------|--------|-------------------|-----------|\n")
	for _, f := range rows {
		sl := f.StopLossLevels
		fmt.Fprintf(w, "| %s | %.6f | [%.6f, %.6f] | %.6f |\n",
			f.Window.Name, sl.StopLoss, sl.EntryLower, sl.EntryUpper, sl.Liquidation)
	}
	fmt.Fprintf(w, "\n")
}

func writeFooter(w io.Writer, result *analysis.Result) {
	fmt.Fprintf(w, "---\n\n")
	fmt.Fprintf(w, "**报告生成时间**: %s\n", result.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "**分析耗时**: %v\n", result.FinishedAt.Sub(result.StartedAt))
}

// WriteSpreadCSV writes Date,Spread,Z rows for the training spread
// Z 为 (x - θ) / σ，与进场 / 平仓 z 同尺度，缺失点留空
func WriteSpreadCSV(w io.Writer, result *analysis.Result) error {
	writer := csv.NewWriter(w)

	var theta, sigma float64
	fit := result.Active()
	if fit != nil && fit.Model != nil {
		theta, sigma = fit.Model.Theta, fit.Model.Sigma
	}

	if err := writer.Write([]string{"Date", "Spread", "Z"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, p := range result.TrainSpread.Points() {
		record := []string{p.Time.Format(market.DateLayout), "", ""}
		if !p.Missing() {
			record[1] = fmt.Sprintf("%.8f", p.Value)
			if z, err := ou.ZScore(p.Value, theta, sigma); err == nil {
				record[2] = fmt.Sprintf("%.4f", z)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// PrintSummary prints a console table of results
func PrintSummary(w io.Writer, results []*analysis.Result) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "OU Mean-Reversion Summary")
	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "%-14s %10s %10s %10s %10s %8s %8s\n",
		"Pair", "Mu", "Theta", "Entry", "Exit", "EntryZ", "ExitZ")
	fmt.Fprintln(w, "────────────────────────────────────────────────────────────")

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Failed() {
			fmt.Fprintf(w, "%-14s ✗ %s\n", r.Pair, r.Error)
			continue
		}
		f := r.Active()
		entry, exit, ez, xz := math.NaN(), math.NaN(), math.NaN(), math.NaN()
		if f.Levels != nil {
			entry, exit = f.Levels.Entry, f.Levels.Liquidation
		}
		if f.ZScores != nil {
			ez, xz = f.ZScores.EntryZ, f.ZScores.ExitZ
		}
		fmt.Fprintf(w, "%-14s %10.5f %10.5f %10.5f %10.5f %8.3f %8.3f\n",
			r.Pair, f.Params.Mu, f.Params.Theta, entry, exit, ez, xz)
	}
	fmt.Fprintln(w, "════════════════════════════════════════════════════════════")
}

func windowString(w analysis.Window) string {
	if w.IsZero() {
		return w.Name
	}
	return fmt.Sprintf("%s ~ %s", w.Start.Format(market.DateLayout), w.End.Format(market.DateLayout))
}

func modelValue(f *analysis.Fit, value func() float64, format string) string {
	if f.Model == nil {
		return "-"
	}
	return fmt.Sprintf(format, value())
}

// Helper functions for evaluation

func evaluateMu(mu float64) string {
	if mu <= 0 || mu >= 2 {
		return "否"
	} else if mu > 1 {
		return "是 (振荡)"
	} else if mu > 0.1 {
		return "是 (快)"
	}
	return "是 (慢)"
}

var _ analysis.Sink = (*Generator)(nil)
