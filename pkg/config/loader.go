package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量覆盖前缀
const EnvPrefix = "OUANALYZER_"

// Load reads a YAML (.yaml/.yml) or TOML (.toml) file on top of Defaults,
// applies .env and OUANALYZER_* environment overrides, and validates the result
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (use .yaml, .yml or .toml)", filepath.Ext(path))
	}

	// .env 不存在时忽略
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// analysis
	setStr(&cfg.Analysis.Name, EnvPrefix+"ANALYSIS_NAME")
	setPairs(&cfg.Analysis.Pairs, EnvPrefix+"ANALYSIS_PAIRS")
	setFloat64(&cfg.Analysis.PeriodsPerYear, EnvPrefix+"ANALYSIS_PERIODS_PER_YEAR")
	setFloat64(&cfg.Analysis.MuTolerance, EnvPrefix+"ANALYSIS_MU_TOLERANCE")
	setInt(&cfg.Analysis.Workers, EnvPrefix+"ANALYSIS_WORKERS")

	// model
	setFloat64(&cfg.Model.EntryRate, EnvPrefix+"MODEL_ENTRY_RATE")
	setFloat64(&cfg.Model.ExitRate, EnvPrefix+"MODEL_EXIT_RATE")
	setFloat64(&cfg.Model.EntryCost, EnvPrefix+"MODEL_ENTRY_COST")
	setFloat64(&cfg.Model.ExitCost, EnvPrefix+"MODEL_EXIT_COST")
	setFloat64Ptr(&cfg.Model.StopLoss, EnvPrefix+"MODEL_STOP_LOSS")

	// data
	setStr(&cfg.Data.SourceType, EnvPrefix+"DATA_SOURCE_TYPE")
	setStr(&cfg.Data.DataPath, EnvPrefix+"DATA_PATH")
	setStr(&cfg.Data.YahooBaseURL, EnvPrefix+"DATA_YAHOO_BASE_URL")
	setStr(&cfg.Data.S3Prefix, EnvPrefix+"DATA_S3_PREFIX")
	setInt64(&cfg.Data.Synthetic.Seed, EnvPrefix+"DATA_SYNTHETIC_SEED")

	// cache
	setBool(&cfg.Cache.Enabled, EnvPrefix+"CACHE_ENABLED")
	setStr(&cfg.Cache.Addr, EnvPrefix+"CACHE_ADDR")
	setStr(&cfg.Cache.Password, EnvPrefix+"CACHE_PASSWORD")
	setInt(&cfg.Cache.DB, EnvPrefix+"CACHE_DB")

	// s3
	setStr(&cfg.S3.Endpoint, EnvPrefix+"S3_ENDPOINT")
	setStr(&cfg.S3.Region, EnvPrefix+"S3_REGION")
	setStr(&cfg.S3.Bucket, EnvPrefix+"S3_BUCKET")
	setStr(&cfg.S3.AccessKey, EnvPrefix+"S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, EnvPrefix+"S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, EnvPrefix+"S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, EnvPrefix+"S3_FORCE_PATH_STYLE")

	// store
	setBool(&cfg.Store.Enabled, EnvPrefix+"STORE_ENABLED")
	setStr(&cfg.Store.DSN, EnvPrefix+"STORE_DSN")
	setInt(&cfg.Store.MaxConns, EnvPrefix+"STORE_MAX_CONNS")

	// bus
	setBool(&cfg.Bus.Enabled, EnvPrefix+"BUS_ENABLED")
	setStr(&cfg.Bus.NATSAddr, EnvPrefix+"BUS_NATS_ADDR")

	// server / output
	setStr(&cfg.Server.GRPCAddr, EnvPrefix+"SERVER_GRPC_ADDR")
	setStr(&cfg.Output.ResultDir, EnvPrefix+"OUTPUT_RESULT_DIR")
	setBool(&cfg.Output.UploadS3, EnvPrefix+"OUTPUT_UPLOAD_S3")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setFloat64Ptr(dst **float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = &f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setPairs "GLD/SIL,GDX/GLD"
func setPairs(dst *[]PairConfig, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	pairs := make([]PairConfig, 0)
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParsePair(part)
		if err != nil {
			return
		}
		pairs = append(pairs, p)
	}
	if len(pairs) > 0 {
		*dst = pairs
	}
}
