// Package live streams simulated, scored readings to websocket clients.
package live

import (
	"context"
	"log/slog"

	"predictive-maintenance/features"
	"predictive-maintenance/models"
	"predictive-maintenance/simulator"
)

type Scorer interface {
	Predict(ctx context.Context, machineID string, reading models.EnrichedReading) (models.Prediction, error)
}

type LatestStore interface {
	SaveLatest(ctx context.Context, machineID string, reading models.SensorReading) error
}

// Update is one machine's reading in a broadcast.
type Update struct {
	models.Prediction
	Anomalous bool `json:"anomalous"`
}

// Feed produces one update per machine on every tick.
type Feed struct {
	machines  []string
	generator *simulator.Generator
	scorer    Scorer
	latest    LatestStore
}

// NewFeed returns a feed over machines. latest may be nil.
func NewFeed(machines []string, gen *simulator.Generator, scorer Scorer, latest LatestStore) *Feed {
	return &Feed{
		machines:  append([]string(nil), machines...),
		generator: gen,
		scorer:    scorer,
		latest:    latest,
	}
}

// Next draws a reading for every machine. Machines whose reading cannot be
// scored are skipped.
func (f *Feed) Next(ctx context.Context) []Update {
	out := make([]Update, 0, len(f.machines))
	for _, id := range f.machines {
		raw := f.generator.Generate()
		if f.latest != nil {
			if err := f.latest.SaveLatest(ctx, id, raw); err != nil {
				slog.Error("live: cache latest reading failed", "machine_id", id, "err", err)
			}
		}
		p, err := f.scorer.Predict(ctx, id, features.Derive(raw))
		if err != nil {
			slog.Warn("live: scoring failed", "machine_id", id, "err", err)
			continue
		}
		out = append(out, Update{Prediction: p, Anomalous: simulator.IsAnomalous(raw)})
	}
	return out
}
