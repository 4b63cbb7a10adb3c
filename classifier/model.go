// Package classifier scores enriched readings for failure risk.
//
// The model is a standardized logistic regression stored as a JSON artifact.
// Training lives in this package too so the artifact layout has one owner.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	StatusNormal      = "Normal"
	StatusFailureRisk = "Failure Risk"
)

var (
	ErrModelNotLoaded  = errors.New("classifier: model not loaded")
	ErrFeatureMismatch = errors.New("classifier: feature columns do not match model")
)

// Status maps a predicted label to the label shown to operators.
func Status(label int) string {
	if label == 1 {
		return StatusFailureRisk
	}
	return StatusNormal
}

type Model struct {
	Features  []string  `json:"features"`
	Mean      []float64 `json:"mean"`
	Scale     []float64 `json:"scale"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Threshold float64   `json:"threshold"`
	TrainedAt time.Time `json:"trained_at"`
}

func (m *Model) validate() error {
	n := len(m.Features)
	if n == 0 {
		return errors.New("model has no features")
	}
	if len(m.Mean) != n || len(m.Scale) != n || len(m.Weights) != n {
		return fmt.Errorf("model dimensions disagree: %d features, %d means, %d scales, %d weights",
			n, len(m.Mean), len(m.Scale), len(m.Weights))
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return fmt.Errorf("model threshold %v is out of range (0, 1)", m.Threshold)
	}
	return nil
}

// CheckFeatures reports whether columns name the model inputs in training
// order.
func (m *Model) CheckFeatures(columns []string) error {
	if !slices.Equal(m.Features, columns) {
		return fmt.Errorf("%w: model %v, configured %v", ErrFeatureMismatch, m.Features, columns)
	}
	return nil
}

// Probability returns the estimated failure probability for x, whose values
// must follow m.Features.
func (m *Model) Probability(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("classifier: got %d features, model expects %d", len(x), len(m.Weights))
	}
	return sigmoid(m.logit(x)), nil
}

// Predict returns the label and failure probability for x.
func (m *Model) Predict(x []float64) (int, float64, error) {
	p, err := m.Probability(x)
	if err != nil {
		return 0, 0, err
	}
	if p >= m.Threshold {
		return 1, p, nil
	}
	return 0, p, nil
}

func (m *Model) logit(x []float64) float64 {
	z := make([]float64, len(x))
	for i, v := range x {
		z[i] = stat.StdScore(v, m.Mean[i], m.Scale[i])
	}
	return floats.Dot(m.Weights, z) + m.Bias
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Load reads a model artifact.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read %q: %w", path, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("classifier: decode %q: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("classifier: %q: %w", path, err)
	}
	return &m, nil
}

// Save writes the artifact atomically, creating parent directories.
func (m *Model) Save(path string) error {
	if err := m.validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("classifier: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("classifier: write %q: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
