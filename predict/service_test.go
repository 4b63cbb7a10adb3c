package predict

import (
	"context"
	"errors"
	"testing"
	"time"

	"predictive-maintenance/analytics"
	"predictive-maintenance/classifier"
	"predictive-maintenance/features"
	"predictive-maintenance/models"
)

type staticModel struct {
	m   *classifier.Model
	err error
}

func (s staticModel) Model() (*classifier.Model, error) { return s.m, s.err }

// torqueModel flags readings whose torque is above 50 Nm.
func torqueModel() *classifier.Model {
	return &classifier.Model{
		Features:  []string{models.ColTorque},
		Mean:      []float64{50},
		Scale:     []float64{1},
		Weights:   []float64{1},
		Threshold: 0.5,
	}
}

type memLog struct {
	got []models.Prediction
	err error
}

func (l *memLog) Insert(_ context.Context, p models.Prediction) error {
	l.got = append(l.got, p)
	return l.err
}

type memAnalyzer struct{ got []analytics.Observation }

func (a *memAnalyzer) Submit(obs analytics.Observation) bool {
	a.got = append(a.got, obs)
	return true
}

func TestPredict(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	log := &memLog{err: errors.New("db down")}
	an := &memAnalyzer{}
	svc := New(staticModel{m: torqueModel()}, []string{models.ColTorque},
		WithLog(log), WithAnalyzer(an), WithClock(func() time.Time { return at }))

	reading := features.Derive(models.SensorReading{AirTemp: 300, ProcessTemp: 310, RPM: 1500, Torque: 70, ToolWear: 200})
	p, err := svc.Predict(context.Background(), "", reading)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p.Label != 1 || p.Status != classifier.StatusFailureRisk || p.Probability < 0.99 {
		t.Errorf("prediction: %+v", p)
	}
	if p.MachineID != DefaultMachineID || p.ID == "" || !p.CreatedAt.Equal(at) {
		t.Errorf("metadata: %+v", p)
	}
	if len(log.got) != 1 || len(an.got) != 1 || an.got[0].Label != 1 {
		t.Errorf("side effects: log %d, analyzer %+v", len(log.got), an.got)
	}
}

func TestScore_Errors(t *testing.T) {
	reading := features.Derive(models.SensorReading{Torque: 10})

	_, err := New(staticModel{err: classifier.ErrModelNotLoaded}, []string{models.ColTorque}).Score(reading)
	if !errors.Is(err, classifier.ErrModelNotLoaded) {
		t.Errorf("no model: got %v", err)
	}

	_, err = New(staticModel{m: torqueModel()}, []string{"humidity"}).Score(reading)
	var mfe *models.MissingFieldError
	if !errors.As(err, &mfe) {
		t.Errorf("unknown column: got %v", err)
	}

	_, err = New(staticModel{m: torqueModel()}, []string{models.ColTorque, models.ColRPM}).Score(reading)
	if err == nil {
		t.Error("dimension mismatch: want error")
	}
}

func TestScore_FeatureOrder(t *testing.T) {
	// A normal reading: low torque, heavy tool wear.
	reading := features.Derive(models.SensorReading{AirTemp: 300, ProcessTemp: 310, RPM: 1500, Torque: 10, ToolWear: 200})

	_, err := New(staticModel{m: torqueModel()}, []string{models.ColToolWear}).Score(reading)
	if !errors.Is(err, classifier.ErrFeatureMismatch) {
		t.Fatalf("wrong column: got %v", err)
	}

	m := &classifier.Model{
		Features:  []string{models.ColTorque, models.ColToolWear},
		Mean:      []float64{50, 0},
		Scale:     []float64{1, 1},
		Weights:   []float64{1, 0},
		Threshold: 0.5,
	}
	_, err = New(staticModel{m: m}, []string{models.ColToolWear, models.ColTorque}).Score(reading)
	if !errors.Is(err, classifier.ErrFeatureMismatch) {
		t.Fatalf("swapped columns: got %v", err)
	}

	p, err := New(staticModel{m: m}, []string{models.ColTorque, models.ColToolWear}).Score(reading)
	if err != nil || p.Label != 0 {
		t.Errorf("matching columns: %+v %v", p, err)
	}
}
