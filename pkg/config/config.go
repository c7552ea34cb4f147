// Package config loads the analyzer configuration from YAML or TOML files
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout 配置中日期的格式
const DateLayout = "2006-01-02"

// Config is the complete configuration for the analyzer
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" toml:"analysis"`
	Model    ModelConfig    `yaml:"model" toml:"model"`
	Data     DataConfig     `yaml:"data" toml:"data"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	S3       S3Config       `yaml:"s3" toml:"s3"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
	Bus      BusConfig      `yaml:"bus" toml:"bus"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Output   OutputConfig   `yaml:"output" toml:"output"`
}

// AnalysisConfig 分析任务：品种对与训练 / 再训练 / 测试窗口
type AnalysisConfig struct {
	Name           string       `yaml:"name" toml:"name"`
	Pairs          []PairConfig `yaml:"pairs" toml:"pairs"`
	Train          WindowConfig `yaml:"train" toml:"train"`
	Retrain        WindowConfig `yaml:"retrain" toml:"retrain"` // 可选
	Test           WindowConfig `yaml:"test" toml:"test"`       // 可选
	PeriodsPerYear float64      `yaml:"periods_per_year" toml:"periods_per_year"`
	MuTolerance    float64      `yaml:"mu_tolerance" toml:"mu_tolerance"`
	Workers        int          `yaml:"workers" toml:"workers"`
}

// PairConfig 一个品种对，spread = log(A) - log(B)
type PairConfig struct {
	A string `yaml:"a" toml:"a"`
	B string `yaml:"b" toml:"b"`
}

// String returns "A/B"
func (p PairConfig) String() string {
	return p.A + "/" + p.B
}

// ParsePair parses "A/B"
func ParsePair(s string) (PairConfig, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return PairConfig{}, fmt.Errorf("invalid pair %q (expected A/B)", s)
	}
	p := PairConfig{A: strings.TrimSpace(parts[0]), B: strings.TrimSpace(parts[1])}
	if p.A == "" || p.B == "" {
		return PairConfig{}, fmt.Errorf("invalid pair %q (empty leg)", s)
	}
	return p, nil
}

// WindowConfig 日期区间 [Start, End]，YYYY-MM-DD
type WindowConfig struct {
	Start string `yaml:"start" toml:"start"`
	End   string `yaml:"end" toml:"end"`
}

// IsSet 是否配置了该窗口
func (w WindowConfig) IsSet() bool {
	return w.Start != "" || w.End != ""
}

// Bounds 解析起止日期
func (w WindowConfig) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q (expected YYYY-MM-DD): %w", w.Start, err)
	}
	end, err := time.Parse(DateLayout, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q (expected YYYY-MM-DD): %w", w.End, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is before start %s", w.End, w.Start)
	}
	return start, end, nil
}

// ModelConfig 最优水平的折现率与交易成本
type ModelConfig struct {
	EntryRate float64 `yaml:"entry_rate" toml:"entry_rate"`
	ExitRate  float64 `yaml:"exit_rate" toml:"exit_rate"`
	EntryCost float64 `yaml:"entry_cost" toml:"entry_cost"`
	ExitCost  float64 `yaml:"exit_cost" toml:"exit_cost"`

	// 止损位（spread 值），不设置时只求无止损水平
	StopLoss *float64 `yaml:"stop_loss" toml:"stop_loss"`
}

// DataConfig 行情数据源
type DataConfig struct {
	SourceType     string          `yaml:"source_type" toml:"source_type"` // csv, yahoo, s3, synthetic
	DataPath       string          `yaml:"data_path" toml:"data_path"`
	YahooBaseURL   string          `yaml:"yahoo_base_url" toml:"yahoo_base_url"`
	S3Prefix       string          `yaml:"s3_prefix" toml:"s3_prefix"`
	TimeoutSeconds int             `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Synthetic      SyntheticConfig `yaml:"synthetic" toml:"synthetic"`
}

// SyntheticConfig 合成数据参数（spread 服从离散 OU）
type SyntheticConfig struct {
	Mu         float64 `yaml:"mu" toml:"mu"`
	Theta      float64 `yaml:"theta" toml:"theta"`
	NoiseStd   float64 `yaml:"noise_std" toml:"noise_std"`
	BasePrice  float64 `yaml:"base_price" toml:"base_price"`
	Volatility float64 `yaml:"volatility" toml:"volatility"`
	Seed       int64   `yaml:"seed" toml:"seed"`
}

// CacheConfig Redis 行情缓存
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Addr       string `yaml:"addr" toml:"addr"`
	Password   string `yaml:"password" toml:"password"`
	DB         int    `yaml:"db" toml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// S3Config S3 兼容对象存储
type S3Config struct {
	Endpoint       string `yaml:"endpoint" toml:"endpoint"`
	Region         string `yaml:"region" toml:"region"`
	Bucket         string `yaml:"bucket" toml:"bucket"`
	AccessKey      string `yaml:"access_key" toml:"access_key"`
	SecretKey      string `yaml:"secret_key" toml:"secret_key"`
	UseSSL         bool   `yaml:"use_ssl" toml:"use_ssl"`
	ForcePathStyle bool   `yaml:"force_path_style" toml:"force_path_style"`
}

// StoreConfig Postgres 结果存储
type StoreConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled"`
	DSN           string `yaml:"dsn" toml:"dsn"`
	MaxConns      int    `yaml:"max_conns" toml:"max_conns"`
	RunMigrations bool   `yaml:"run_migrations" toml:"run_migrations"`
}

// BusConfig NATS 消息总线
type BusConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled"`
	NATSAddr        string `yaml:"nats_addr" toml:"nats_addr"`
	SubjectPrefix   string `yaml:"subject_prefix" toml:"subject_prefix"`
	EstimateSubject string `yaml:"estimate_subject" toml:"estimate_subject"`
	QueueGroup      string `yaml:"queue_group" toml:"queue_group"`
}

// ServerConfig gRPC 服务
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// OutputConfig 报告输出
type OutputConfig struct {
	ResultDir string   `yaml:"result_dir" toml:"result_dir"`
	Formats   []string `yaml:"formats" toml:"formats"` // markdown, json, csv
	UploadS3  bool     `yaml:"upload_s3" toml:"upload_s3"`
	S3Prefix  string   `yaml:"s3_prefix" toml:"s3_prefix"`
}

// Defaults returns the built-in configuration
// 与原始分析保持一致：GLD/SIL，日频，r = 5%，c = 0.02
func Defaults() Config {
	return Config{
		Analysis: AnalysisConfig{
			Name:           "ou_mean_reversion",
			Pairs:          []PairConfig{{A: "GLD", B: "SIL"}},
			Train:          WindowConfig{Start: "2022-01-01", End: "2023-12-31"},
			Retrain:        WindowConfig{Start: "2024-01-01", End: "2024-05-30"},
			Test:           WindowConfig{Start: "2024-06-01", End: "2024-10-10"},
			PeriodsPerYear: 252,
			MuTolerance:    1e-8,
			Workers:        4,
		},
		Model: ModelConfig{
			EntryRate: 0.05,
			ExitRate:  0.05,
			EntryCost: 0.02,
			ExitCost:  0.02,
		},
		Data: DataConfig{
			SourceType:     "yahoo",
			DataPath:       "./data",
			YahooBaseURL:   "https://query1.finance.yahoo.com",
			TimeoutSeconds: 30,
			Synthetic: SyntheticConfig{
				Mu:         0.05,
				Theta:      0.2,
				NoiseStd:   0.01,
				BasePrice:  100,
				Volatility: 0.01,
				Seed:       42,
			},
		},
		Cache: CacheConfig{
			Addr:       "localhost:6379",
			TTLSeconds: 86400,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Store: StoreConfig{
			MaxConns:      4,
			RunMigrations: true,
		},
		Bus: BusConfig{
			NATSAddr:        "nats://localhost:4222",
			SubjectPrefix:   "ou",
			EstimateSubject: "ou.estimate",
			QueueGroup:      "ouanalyzer",
		},
		Server: ServerConfig{
			GRPCAddr: ":50061",
		},
		Output: OutputConfig{
			ResultDir: "./results",
			Formats:   []string{"markdown", "json"},
			S3Prefix:  "reports",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Analysis.Pairs) == 0 {
		return fmt.Errorf("at least one pair is required")
	}
	for i, p := range c.Analysis.Pairs {
		if p.A == "" || p.B == "" {
			return fmt.Errorf("pairs[%d]: both legs are required", i)
		}
		if p.A == p.B {
			return fmt.Errorf("pairs[%d]: legs must differ (%s)", i, p)
		}
	}

	if _, _, err := c.Analysis.Train.Bounds(); err != nil {
		return fmt.Errorf("train window: %w", err)
	}
	if c.Analysis.Retrain.IsSet() {
		if _, _, err := c.Analysis.Retrain.Bounds(); err != nil {
			return fmt.Errorf("retrain window: %w", err)
		}
	}
	if c.Analysis.Test.IsSet() {
		if _, _, err := c.Analysis.Test.Bounds(); err != nil {
			return fmt.Errorf("test window: %w", err)
		}
	}

	if c.Analysis.PeriodsPerYear <= 0 {
		return fmt.Errorf("periods_per_year must be positive")
	}
	if c.Analysis.MuTolerance < 0 {
		return fmt.Errorf("mu_tolerance must not be negative")
	}
	if c.Analysis.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.Model.EntryRate <= 0 || c.Model.ExitRate <= 0 {
		return fmt.Errorf("discount rates must be positive")
	}
	if c.Model.EntryCost < 0 || c.Model.ExitCost < 0 {
		return fmt.Errorf("transaction costs must not be negative")
	}
	if sl := c.Model.StopLoss; sl != nil && (math.IsNaN(*sl) || math.IsInf(*sl, 0)) {
		return fmt.Errorf("stop_loss must be finite")
	}

	switch c.Data.SourceType {
	case "csv":
		if c.Data.DataPath == "" {
			return fmt.Errorf("data_path is required for csv source")
		}
	case "yahoo":
		if c.Data.YahooBaseURL == "" {
			return fmt.Errorf("yahoo_base_url is required for yahoo source")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required for s3 source")
		}
	case "synthetic":
		// Valid
	default:
		return fmt.Errorf("invalid source_type: %s (must be csv, yahoo, s3, or synthetic)", c.Data.SourceType)
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store is enabled")
	}
	if c.Bus.Enabled && c.Bus.NATSAddr == "" {
		return fmt.Errorf("NATS address is required when bus is enabled")
	}

	for _, f := range c.Output.Formats {
		switch f {
		case "markdown", "json", "csv":
			// Valid
		default:
			return fmt.Errorf("invalid output format: %s (must be markdown, json, or csv)", f)
		}
	}
	if c.Output.UploadS3 && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when upload_s3 is enabled")
	}

	return nil
}

// Dt returns the length of one observation period in years
func (c *Config) Dt() float64 {
	if c.Analysis.PeriodsPerYear <= 0 {
		return 1.0 / 252
	}
	return 1 / c.Analysis.PeriodsPerYear
}

// GetCacheTTL returns the series cache TTL
func (c *Config) GetCacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 24 * time.Hour // Default 1 day
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// GetDataTimeout returns the per-request timeout for remote sources
func (c *Config) GetDataTimeout() time.Duration {
	if c.Data.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Data.TimeoutSeconds) * time.Second
}

// HasFormat reports whether an output format is enabled
func (c *Config) HasFormat(format string) bool {
	for _, f := range c.Output.Formats {
		if f == format {
			return true
		}
	}
	return false
}
