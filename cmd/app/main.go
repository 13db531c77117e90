package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"gwdiag/internal/app"
	"gwdiag/internal/service"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	outPath := flag.String("out", "", "write the JSON report to this file instead of stdout")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Run the diagnostic sequence
	runner := service.NewDiagnosticsRunner(bootstrap.Config, bootstrap.Storage)
	report := runner.Run(ctx)

	// 4. Emit the report
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("Failed to encode report", slog.Any("error", err))
		os.Exit(1)
	}
	data = append(data, '\n')

	if *outPath != "" {
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			slog.Error("Failed to write report", slog.String("path", *outPath), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("✅ Report written", slog.String("path", *outPath))
	} else {
		os.Stdout.Write(data)
	}

	if !report.Connected {
		os.Exit(1)
	}

	slog.Info("👋 Diagnostic run complete",
		slog.String("run_id", report.RunID),
		slog.Int("instruments", len(report.Results)),
		slog.Int("resolved", report.Resolved()),
	)
}
