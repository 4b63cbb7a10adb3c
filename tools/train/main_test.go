package main

import (
	"path/filepath"
	"testing"

	"predictive-maintenance/classifier"
	"predictive-maintenance/config"
	"predictive-maintenance/dataset"
	"predictive-maintenance/features"
	"predictive-maintenance/models"
	"predictive-maintenance/simulator"
)

// writeDataset labels simulated readings with the injected-anomaly rule, a
// target the classifier can learn from torque and speed.
func writeDataset(t *testing.T, path string, n int) {
	t.Helper()
	gen := simulator.New(21)
	readings := make([]models.SensorReading, n)
	target := make([]float64, n)
	for i := range readings {
		readings[i] = gen.Generate()
		if simulator.IsAnomalous(readings[i]) {
			target[i] = 1
		}
	}
	f := models.FrameFromReadings(readings)
	if err := f.Set(models.TargetColumn, target); err != nil {
		t.Fatal(err)
	}
	f, err := features.DeriveFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := dataset.SaveCSV(path, f); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Data:     config.DataConfig{ProcessedPath: filepath.Join(dir, "refined.csv")},
		Features: config.FeaturesConfig{Numerical: models.DefaultFeatureColumns},
		Model: config.ModelConfig{
			Path:         filepath.Join(dir, "model.json"),
			LearningRate: 0.5,
			Epochs:       300,
			Threshold:    0.5,
			TestSize:     0.2,
			RandomState:  42,
		},
	}
	writeDataset(t, cfg.Data.ProcessedPath, 2000)

	report, err := run(cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Accuracy < 0.85 {
		t.Errorf("accuracy: %.3f\n%s", report.Accuracy, report)
	}

	m, err := classifier.Load(cfg.Model.Path)
	if err != nil {
		t.Fatalf("load artifact: %v", err)
	}
	if len(m.Features) != len(models.DefaultFeatureColumns) {
		t.Errorf("artifact features: %v", m.Features)
	}
}
