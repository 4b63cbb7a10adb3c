// Command train fits the failure classifier on the processed dataset and
// writes the model artifact the API serves.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"predictive-maintenance/classifier"
	"predictive-maintenance/config"
	"predictive-maintenance/dataset"
	"predictive-maintenance/features"
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

	report, err := run(cfg)
	if err != nil {
		slog.Error("training failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("--- MODEL PERFORMANCE REPORT ---")
	fmt.Print(report)
}

func run(cfg *config.Config) (classifier.Report, error) {
	frame, err := dataset.LoadCSV(cfg.Data.ProcessedPath)
	if err != nil {
		return classifier.Report{}, err
	}
	// Older processed files may predate derivation; recomputing is harmless.
	frame, err = features.DeriveFrame(frame)
	if err != nil {
		return classifier.Report{}, err
	}

	X, err := features.Matrix(frame, cfg.Features.Numerical)
	if err != nil {
		return classifier.Report{}, err
	}
	y, err := dataset.Labels(frame)
	if err != nil {
		return classifier.Report{}, err
	}

	xTrain, xTest, yTrain, yTest := classifier.Split(X, y, cfg.Model.TestSize, cfg.Model.RandomState)
	slog.Info("training model", "train_rows", len(xTrain), "test_rows", len(xTest), "features", cfg.Features.Numerical)

	model, err := classifier.Train(cfg.Features.Numerical, xTrain, yTrain, classifier.Params{
		LearningRate: cfg.Model.LearningRate,
		Epochs:       cfg.Model.Epochs,
		L2:           cfg.Model.L2,
		Threshold:    cfg.Model.Threshold,
	})
	if err != nil {
		return classifier.Report{}, err
	}

	report, err := classifier.Evaluate(model, xTest, yTest)
	if err != nil {
		return classifier.Report{}, err
	}
	slog.Info("model evaluated", "accuracy", report.Accuracy, "macro_f1", report.MacroF1)

	if err := model.Save(cfg.Model.Path); err != nil {
		return classifier.Report{}, err
	}
	slog.Info("model saved", "path", cfg.Model.Path)
	return report, nil
}
