package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/analysis"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/blob"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/bus"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/config"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/report"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/rpc"
)

const (
	appName    = "OUAnalyzer"
	appVersion = "1.0.0"
)

var (
	// Command line flags
	configFile = flag.String("config", "./config/ouanalyzer.yaml", "Configuration file path (.yaml or .toml)")
	mode       = flag.String("mode", "run", "Mode: run (analyze pairs once) or serve (gRPC + NATS estimator)")
	pairFlag   = flag.String("pair", "", "Pair A/B to analyze (overrides config)")
	outputDir  = flag.String("output", "", "Output directory (overrides config)")
	version    = flag.Bool("version", false, "Print version and exit")
	help       = flag.Bool("help", false, "Print help and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	printBanner()

	// Load configuration
	log.Printf("[Main] Loading configuration from: %s", *configFile)
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}
	log.Println("[Main] ✓ Configuration loaded successfully")

	// Override with command line flags
	if *pairFlag != "" {
		p, err := config.ParsePair(*pairFlag)
		if err != nil {
			log.Fatalf("[Main] %v", err)
		}
		cfg.Analysis.Pairs = []config.PairConfig{p}
		log.Printf("[Main] Pair overridden: %s", p)
	}
	if *outputDir != "" {
		cfg.Output.ResultDir = *outputDir
		log.Printf("[Main] Output directory overridden: %s", *outputDir)
	}

	printConfigSummary(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "run":
		err = runAnalysis(ctx, cfg)
	case "serve":
		err = serve(ctx, cfg)
	default:
		err = fmt.Errorf("unknown mode %q (must be run or serve)", *mode)
	}
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func runAnalysis(ctx context.Context, cfg *config.Config) error {
	var cl closers
	defer cl.closeAll()

	var blobClient *blob.Client
	if cfg.Data.SourceType == "s3" || cfg.Output.UploadS3 {
		c, err := newBlobClient(ctx, cfg)
		if err != nil {
			return err
		}
		blobClient = c
		log.Printf("[Main] ✓ S3 bucket: %s", c.Bucket())
	}

	source, err := buildSource(ctx, cfg, blobClient, &cl)
	if err != nil {
		return fmt.Errorf("data source: %w", err)
	}
	sinks, err := buildSinks(ctx, cfg, blobClient, &cl)
	if err != nil {
		return fmt.Errorf("sinks: %w", err)
	}
	windows, err := buildWindows(cfg)
	if err != nil {
		return err
	}

	pipeline := analysis.NewPipeline(source, windows, fitOptions(cfg), sinks...)

	log.Printf("[Main] Analyzing %d pair(s) with %d worker(s)...", len(cfg.Analysis.Pairs), cfg.Analysis.Workers)
	results, err := pipeline.RunAll(ctx, pairs(cfg), cfg.Analysis.Workers)
	if err != nil {
		return fmt.Errorf("analysis aborted: %w", err)
	}

	report.PrintSummary(os.Stdout, results)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		log.Printf("[Main] Analysis completed with %d failed pair(s)", failed)
	} else {
		log.Println("[Main] Analysis completed successfully!")
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	svc := rpc.NewService(fitOptions(cfg))
	server := rpc.NewServer(svc)
	addr, err := server.Listen(cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	defer server.Stop()
	log.Printf("[Main] ✓ Estimator serving on %s", addr)

	if cfg.Bus.Enabled {
		nc, err := bus.Connect(cfg.Bus.NATSAddr)
		if err != nil {
			return err
		}
		defer nc.Close()

		responder := bus.NewResponder(nc, cfg.Bus.EstimateSubject, cfg.Bus.QueueGroup)
		if err := responder.Start(); err != nil {
			return err
		}
		defer func() {
			if err := responder.Stop(); err != nil {
				log.Printf("[Main] Failed to drain responder: %v", err)
			}
			served, failed := responder.Stats()
			log.Printf("[Main] NATS estimate requests: %d served, %d failed", served, failed)
		}()
	}

	<-ctx.Done()
	log.Println("[Main] Shutting down...")

	requests, failures := svc.Stats()
	log.Printf("[Main] gRPC Fit requests: %d (%d failed)", requests, failures)
	return nil
}

func printBanner() {
	fmt.Println("========================================")
	fmt.Printf("%s v%s\n", appName, appVersion)
	fmt.Println("价差均值回复 (OU) 分析")
	fmt.Println("========================================")
}

func printHelp() {
	fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  # Analyze the configured pairs")
	fmt.Println("  ./ouanalyzer -config config/ouanalyzer.yaml")
	fmt.Println()
	fmt.Println("  # Analyze a single pair, reports into ./out")
	fmt.Println("  ./ouanalyzer -config config/ouanalyzer.toml -pair GLD/SIL -output ./out")
	fmt.Println()
	fmt.Println("  # Serve the gRPC estimator and NATS responder")
	fmt.Println("  ./ouanalyzer -config config/ouanalyzer.yaml -mode serve")
	fmt.Println()
}
