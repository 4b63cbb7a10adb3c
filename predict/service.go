// Package predict turns enriched readings into logged, analysed predictions.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"predictive-maintenance/analytics"
	"predictive-maintenance/classifier"
	"predictive-maintenance/features"
	"predictive-maintenance/models"
)

// DefaultMachineID is used for readings that do not name a machine.
const DefaultMachineID = "machine-1"

type ModelSource interface {
	Model() (*classifier.Model, error)
}

type LogWriter interface {
	Insert(ctx context.Context, p models.Prediction) error
}

type Analyzer interface {
	Submit(obs analytics.Observation) bool
}

type Service struct {
	models   ModelSource
	columns  []string
	log      LogWriter
	analyzer Analyzer
	now      func() time.Time
}

type Option func(*Service)

// WithLog records every prediction. Insert failures are logged and do not
// fail the prediction.
func WithLog(w LogWriter) Option {
	return func(s *Service) { s.log = w }
}

func WithAnalyzer(a Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a service that feeds columns, in order, to the active model.
func New(src ModelSource, columns []string, opts ...Option) *Service {
	s := &Service{
		models:  src,
		columns: append([]string(nil), columns...),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score predicts without side effects.
func (s *Service) Score(reading models.EnrichedReading) (models.Prediction, error) {
	m, err := s.models.Model()
	if err != nil {
		return models.Prediction{}, err
	}
	vec, err := features.Vector(reading, s.columns)
	if err != nil {
		return models.Prediction{}, err
	}
	if err := m.CheckFeatures(s.columns); err != nil {
		return models.Prediction{}, err
	}
	label, prob, err := m.Predict(vec)
	if err != nil {
		return models.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	return models.Prediction{
		ID:          uuid.NewString(),
		Reading:     reading,
		Features:    vec,
		Label:       label,
		Probability: prob,
		Status:      classifier.Status(label),
		CreatedAt:   s.now().UTC(),
	}, nil
}

// Predict scores the reading, then logs it and hands it to the analytics
// engine when those are configured.
func (s *Service) Predict(ctx context.Context, machineID string, reading models.EnrichedReading) (models.Prediction, error) {
	if machineID == "" {
		machineID = DefaultMachineID
	}
	p, err := s.Score(reading)
	if err != nil {
		return models.Prediction{}, err
	}
	p.MachineID = machineID

	if s.log != nil {
		if err := s.log.Insert(ctx, p); err != nil {
			slog.Error("predict: log insert failed", "prediction_id", p.ID, "err", err)
		}
	}
	if s.analyzer != nil {
		s.analyzer.Submit(analytics.Observation{MachineID: machineID, Reading: reading, Label: p.Label})
	}
	return p, nil
}
