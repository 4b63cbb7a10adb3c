// Command ingest downloads the raw sensor dataset, normalizes its column
// names, derives features and writes the processed CSV used for training.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"predictive-maintenance/config"
	"predictive-maintenance/dataset"
	"predictive-maintenance/features"
	"predictive-maintenance/models"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to params file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg); err != nil {
		slog.Error("ingestion failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting data ingestion", "url", cfg.Data.RawURL)
	client := &http.Client{Timeout: 2 * time.Minute}

	raw, err := dataset.Ingest(ctx, client, cfg.Data.RawURL, cfg.Data.RawPath)
	if err != nil {
		return err
	}

	if raw.Has("UDI") {
		slog.Info("renaming raw columns")
		raw = dataset.RenameUCI(raw)
		if err := dataset.SaveCSV(cfg.Data.RawPath, raw); err != nil {
			return err
		}
	}

	processed, err := features.DeriveFrame(raw)
	if err != nil {
		return err
	}
	if err := dataset.SaveCSV(cfg.Data.ProcessedPath, processed); err != nil {
		return err
	}

	failures := 0
	if target, ok := processed.Column(models.TargetColumn); ok {
		for _, v := range target {
			if v == 1 {
				failures++
			}
		}
	}
	if corr, err := dataset.TargetCorrelations(processed); err == nil {
		for _, c := range corr {
			slog.Info("target correlation", "column", c.Column, "pearson", c.Value)
		}
	}

	slog.Info("processed data saved",
		"path", cfg.Data.ProcessedPath,
		"rows", processed.Len(),
		"columns", len(processed.Columns()),
		"failures", failures)
	return nil
}
