package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/DeniceLiu/statarb-mean-reversion/pkg/config"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/ou"
	"github.com/DeniceLiu/statarb-mean-reversion/pkg/report"
)

func TestBuildWindows(t *testing.T) {
	cfg := config.Defaults()
	w, err := buildWindows(&cfg)
	if err != nil {
		t.Fatalf("buildWindows() error = %v", err)
	}
	if w.Train.Name != "train" || w.Train.Start.Year() != 2022 {
		t.Errorf("Train = %+v", w.Train)
	}
	if w.Retrain.IsZero() || w.Test.IsZero() {
		t.Error("retrain and test windows expected from defaults")
	}

	cfg.Analysis.Retrain = config.WindowConfig{}
	cfg.Analysis.Test = config.WindowConfig{}
	w, err = buildWindows(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !w.Retrain.IsZero() || !w.Test.IsZero() {
		t.Error("unset windows must stay zero")
	}

	cfg.Analysis.Train.End = "not-a-date"
	if _, err := buildWindows(&cfg); err == nil {
		t.Error("expected error for bad train window")
	}
}

func TestFitOptions(t *testing.T) {
	cfg := config.Defaults()
	cfg.Analysis.PeriodsPerYear = 52
	cfg.Analysis.MuTolerance = 0
	cfg.Model.ExitCost = 0.05

	opts := fitOptions(&cfg)
	if opts.Dt != 1.0/52 {
		t.Errorf("Dt = %v", opts.Dt)
	}
	if opts.MuTolerance != ou.DefaultMuTolerance {
		t.Errorf("MuTolerance = %v", opts.MuTolerance)
	}
	if opts.Costs.ExitCost != 0.05 || opts.Costs.EntryRate != 0.05 {
		t.Errorf("Costs = %+v", opts.Costs)
	}
	if opts.StopLoss != nil {
		t.Errorf("StopLoss = %v, want nil by default", *opts.StopLoss)
	}

	stop := -0.2
	cfg.Model.StopLoss = &stop
	if opts := fitOptions(&cfg); opts.StopLoss == nil || *opts.StopLoss != -0.2 {
		t.Errorf("StopLoss not passed through: %v", opts.StopLoss)
	}
}

func TestBuildSource_Synthetic(t *testing.T) {
	cfg := config.Defaults()
	cfg.Data.SourceType = "synthetic"

	var cl closers
	defer cl.closeAll()
	src, err := buildSource(context.Background(), &cfg, nil, &cl)
	if err != nil {
		t.Fatalf("buildSource() error = %v", err)
	}
	if src.Name() != "synthetic" {
		t.Errorf("Name() = %s", src.Name())
	}

	cfg.Data.SourceType = "s3"
	if _, err := buildSource(context.Background(), &cfg, nil, &cl); err == nil {
		t.Error("s3 source without client must fail")
	}
}

func TestBuildSinks_ReportOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.Output.ResultDir = t.TempDir()

	var cl closers
	sinks, err := buildSinks(context.Background(), &cfg, nil, &cl)
	if err != nil {
		t.Fatalf("buildSinks() error = %v", err)
	}
	if len(sinks) != 1 {
		t.Fatalf("len(sinks) = %d, want 1", len(sinks))
	}
	if _, ok := sinks[0].(*report.Generator); !ok {
		t.Errorf("sink = %T", sinks[0])
	}

	cfg.Output.UploadS3 = true
	if _, err := buildSinks(context.Background(), &cfg, nil, &cl); err == nil {
		t.Error("upload without s3 client must fail")
	}
}

func TestClosersOrder(t *testing.T) {
	var order []int
	var cl closers
	cl.add(func() { order = append(order, 1) })
	cl.add(func() { order = append(order, 2) })
	cl.closeAll()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("order = %v, want [2 1]", order)
	}
}

func TestPrintConfigSummary(t *testing.T) {
	cfg := config.Defaults()
	var buf bytes.Buffer
	printConfigSummary(&buf, &cfg)
	if !strings.Contains(buf.String(), "2022-01-01 to 2023-12-31") {
		t.Errorf("summary missing train window:\n%s", buf.String())
	}
}
