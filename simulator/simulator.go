// Package simulator produces synthetic sensor readings for the live demo
// feed and for load testing. Torque tracks rotational speed around a
// constant nominal power, and a small share of readings carry an injected
// equipment-stress anomaly.
package simulator

import (
	"math/rand/v2"
	"sync"
	"time"

	"predictive-maintenance/models"
)

const (
	AirTempMean = 300.0
	AirTempStd  = 2.0

	ProcessDeltaMean = 10.0
	ProcessDeltaStd  = 1.0

	RPMMean = 1500.0
	RPMStd  = 100.0

	// NominalPower is 40 Nm at 1500 rpm.
	NominalPower = 40 * 1500.0
	TorqueStd    = 5.0

	MaxToolWear = 250

	AnomalyProbability = 0.05
	AnomalyTorque      = 30.0
	AnomalyToolWear    = 100
)

// Generator draws readings from its own random source. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// New returns a generator seeded deterministically.
func New(seed uint64) *Generator {
	return NewWithSource(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), time.Now)
}

// NewWithSource returns a generator drawing from src and stamping readings
// with now. A nil now uses time.Now.
func NewWithSource(src rand.Source, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rng: rand.New(src), now: now}
}

// Generate draws one reading. It never fails.
func (g *Generator) Generate() models.SensorReading {
	g.mu.Lock()
	airTemp := g.normal(AirTempMean, AirTempStd)
	processTemp := airTemp + g.normal(ProcessDeltaMean, ProcessDeltaStd)

	rpm := g.normal(RPMMean, RPMStd)
	torque := NominalPower/rpm + g.normal(0, TorqueStd)

	toolWear := g.rng.IntN(MaxToolWear + 1)

	if g.rng.Float64() < AnomalyProbability {
		torque += AnomalyTorque
		toolWear += AnomalyToolWear
	}
	g.mu.Unlock()

	return models.SensorReading{
		AirTemp:     airTemp,
		ProcessTemp: processTemp,
		RPM:         int(rpm),
		Torque:      torque,
		ToolWear:    toolWear,
		Timestamp:   g.now(),
	}
}

func (g *Generator) normal(mean, std float64) float64 {
	return mean + std*g.rng.NormFloat64()
}

var defaultGenerator = NewWithSource(rand.NewPCG(rand.Uint64(), rand.Uint64()), time.Now)

// Generate draws one reading from the process-wide generator.
func Generate() models.SensorReading {
	return defaultGenerator.Generate()
}

// IsAnomalous reports whether the reading's torque lies above the 3-sigma
// envelope of the nominal torque for its speed. Non-positive rpm is always
// anomalous.
func IsAnomalous(r models.SensorReading) bool {
	if r.RPM <= 0 {
		return true
	}
	return r.Torque > NominalPower/float64(r.RPM)+3*TorqueStd
}
