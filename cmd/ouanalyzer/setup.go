package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/blob"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/bus"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/cache"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/config"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/market"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/report"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/store"
)

// closers 按注册的逆序关闭外部连接
type closers []func()

func (c *closers) add(fn func()) {
	*c = append(*c, fn)
}

func (c *closers) closeAll() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
	*c = nil
}

func buildWindows(cfg *config.Config) (analysis.Windows, error) {
	var w analysis.Windows

	start, end, err := cfg.Analysis.Train.Bounds()
	if err != nil {
		return w, fmt.Errorf("train window: %w", err)
	}
	w.Train = analysis.Window{Name: "train", Start: start, End: end}

	if cfg.Analysis.Retrain.IsSet() {
		start, end, err := cfg.Analysis.Retrain.Bounds()
		if err != nil {
			return w, fmt.Errorf("retrain window: %w", err)
		}
		w.Retrain = analysis.Window{Name: "retrain", Start: start, End: end}
	}
	if cfg.Analysis.Test.IsSet() {
		start, end, err := cfg.Analysis.Test.Bounds()
		if err != nil {
			return w, fmt.Errorf("test window: %w", err)
		}
		w.Test = analysis.Window{Name: "test", Start: start, End: end}
	}
	return w, nil
}

func fitOptions(cfg *config.Config) analysis.FitOptions {
	opts := analysis.FitOptions{
		Dt:          cfg.Dt(),
		MuTolerance: cfg.Analysis.MuTolerance,
		Costs: ou.LevelCosts{
			EntryRate: cfg.Model.EntryRate,
			ExitRate:  cfg.Model.ExitRate,
			EntryCost: cfg.Model.EntryCost,
			ExitCost:  cfg.Model.ExitCost,
		},
		StopLoss: cfg.Model.StopLoss,
	}
	if opts.MuTolerance <= 0 {
		opts.MuTolerance = ou.DefaultMuTolerance
	}
	return opts
}

func pairs(cfg *config.Config) []analysis.Pair {
	out := make([]analysis.Pair, len(cfg.Analysis.Pairs))
	for i, p := range cfg.Analysis.Pairs {
		out[i] = analysis.Pair{A: p.A, B: p.B}
	}
	return out
}

func newBlobClient(ctx context.Context, cfg *config.Config) (*blob.Client, error) {
	return blob.New(ctx, blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
}

// buildSource 数据源，启用缓存时包一层 Redis read-through
func buildSource(ctx context.Context, cfg *config.Config, blobClient *blob.Client, cl *closers) (market.Source, error) {
	var src market.Source

	switch cfg.Data.SourceType {
	case "csv":
		src = market.NewCSVSource(cfg.Data.DataPath)
	case "yahoo":
		y := market.NewYahooSource(cfg.Data.YahooBaseURL)
		y.SetTimeout(cfg.GetDataTimeout())
		src = y
	case "s3":
		if blobClient == nil {
			return nil, fmt.Errorf("s3 source requires an s3 client")
		}
		src = market.NewBlobSource(blob.NewReader(blobClient), cfg.Data.S3Prefix)
	case "synthetic":
		windows, err := buildWindows(cfg)
		if err != nil {
			return nil, err
		}
		start, end := windows.Train.Start, windows.Train.End
		for _, w := range []analysis.Window{windows.Retrain, windows.Test} {
			if !w.IsZero() && w.End.After(end) {
				end = w.End
			}
		}
		syn := cfg.Data.Synthetic
		legs := make([][2]string, len(cfg.Analysis.Pairs))
		for i, p := range cfg.Analysis.Pairs {
			legs[i] = [2]string{p.A, p.B}
		}
		src = market.NewSyntheticSource(market.SyntheticConfig{
			Start:      start,
			End:        end,
			Mu:         syn.Mu,
			Theta:      syn.Theta,
			NoiseStd:   syn.NoiseStd,
			BasePrice:  syn.BasePrice,
			Volatility: syn.Volatility,
			Seed:       syn.Seed,
		}, legs)
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Data.SourceType)
	}
	log.Printf("[Main] Data source: %s", src.Name())

	if !cfg.Cache.Enabled {
		return src, nil
	}

	rc, err := cache.New(ctx, cache.ClientConfig{
		Addr:     cfg.Cache.Addr,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	})
	if err != nil {
		return nil, err
	}
	cl.add(func() { _ = rc.Close() })
	log.Printf("[Main] ✓ Redis cache connected: %s (ttl %v)", cfg.Cache.Addr, cfg.GetCacheTTL())

	return market.NewCachedSource(src, cache.NewSeriesCache(rc), cfg.GetCacheTTL()), nil
}

// buildSinks 按配置依次创建 postgres / nats / report sink
func buildSinks(ctx context.Context, cfg *config.Config, blobClient *blob.Client, cl *closers) ([]analysis.Sink, error) {
	var sinks []analysis.Sink

	if cfg.Store.Enabled {
		pg, err := store.New(ctx, store.ClientConfig{DSN: cfg.Store.DSN, MaxConns: cfg.Store.MaxConns})
		if err != nil {
			return nil, err
		}
		cl.add(pg.Close)
		if cfg.Store.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return nil, err
			}
		}
		sinks = append(sinks, store.NewFitStore(pg.Pool()))
		log.Println("[Main] ✓ Postgres store connected")
	}

	if cfg.Bus.Enabled {
		nc, err := bus.Connect(cfg.Bus.NATSAddr)
		if err != nil {
			return nil, err
		}
		cl.add(func() {
			_ = nc.Flush()
			nc.Close()
		})
		sinks = append(sinks, bus.NewPublisher(nc, cfg.Bus.SubjectPrefix))
		log.Printf("[Main] ✓ NATS connected: %s", cfg.Bus.NATSAddr)
	}

	if len(cfg.Output.Formats) > 0 {
		var opts []report.Option
		if cfg.Output.UploadS3 {
			if blobClient == nil {
				return nil, fmt.Errorf("report upload requires an s3 client")
			}
			opts = append(opts, report.WithUpload(blob.NewWriter(blobClient), cfg.Output.S3Prefix, blob.ObjectKey, blob.ContentType))
		}
		sinks = append(sinks, report.NewGenerator(cfg.Output.ResultDir, cfg.Output.Formats, opts...))
	}

	return sinks, nil
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintln(w, "Configuration Summary")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Analysis Name:     %s\n", cfg.Analysis.Name)
	fmt.Fprintf(w, "Pairs:             %v\n", cfg.Analysis.Pairs)
	fmt.Fprintf(w, "Train Window:      %s to %s\n", cfg.Analysis.Train.Start, cfg.Analysis.Train.End)
	if cfg.Analysis.Retrain.IsSet() {
		fmt.Fprintf(w, "Retrain Window:    %s to %s\n", cfg.Analysis.Retrain.Start, cfg.Analysis.Retrain.End)
	}
	if cfg.Analysis.Test.IsSet() {
		fmt.Fprintf(w, "Test Window:       %s to %s\n", cfg.Analysis.Test.Start, cfg.Analysis.Test.End)
	}
	fmt.Fprintf(w, "Periods / Year:    %.0f\n", cfg.Analysis.PeriodsPerYear)
	fmt.Fprintf(w, "Discount Rates:    %.4f / %.4f\n", cfg.Model.EntryRate, cfg.Model.ExitRate)
	fmt.Fprintf(w, "Costs:             %.4f / %.4f\n", cfg.Model.EntryCost, cfg.Model.ExitCost)
	if cfg.Model.StopLoss != nil {
		fmt.Fprintf(w, "Stop Loss:         %.4f\n", *cfg.Model.StopLoss)
	}
	fmt.Fprintf(w, "Data Source:       %s\n", cfg.Data.SourceType)
	fmt.Fprintf(w, "Workers:           %d\n", cfg.Analysis.Workers)
	fmt.Fprintf(w, "Output Directory:  %s %v\n", cfg.Output.ResultDir, cfg.Output.Formats)
	fmt.Fprintln(w, "========================================")
}
