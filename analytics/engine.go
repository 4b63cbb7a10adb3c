// Package analytics tracks per-machine rolling statistics over scored
// readings and flags torque spikes.
package analytics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"predictive-maintenance/models"
)

type AnomalyCallback func(machineID string)

// AnalysisStore persists the latest analysis per machine.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, machineID string, result models.MachineAnalysis) error
}

// Observation is one scored reading from a machine.
type Observation struct {
	MachineID string
	Reading   models.EnrichedReading
	Label     int
}

type machineState struct {
	mu       sync.Mutex
	power    *RollingWindow
	failures *RollingWindow
	torque   *AnomalyDetector
	samples  int
}

type AnalyticsEngine struct {
	store     AnalysisStore
	onAnomaly AnomalyCallback

	mu       sync.RWMutex
	machines map[string]*machineState

	obsChan chan Observation
	wg      sync.WaitGroup
	once    sync.Once

	closeMu sync.RWMutex
	closed  bool
}

// NewAnalyticsEngine starts the worker pool. ANALYTICS_WORKERS overrides the
// worker count, which is clamped to [4, 16].
func NewAnalyticsEngine(store AnalysisStore, onAnomaly AnomalyCallback) *AnalyticsEngine {
	engine := &AnalyticsEngine{
		store:     store,
		onAnomaly: onAnomaly,
		machines:  make(map[string]*machineState),
		obsChan:   make(chan Observation, 10000),
	}

	numWorkers := runtime.NumCPU() * 2
	if envWorkers := os.Getenv("ANALYTICS_WORKERS"); envWorkers != "" {
		if w, err := strconv.Atoi(envWorkers); err == nil && w > 0 {
			numWorkers = w
		}
	}
	if numWorkers < 4 {
		numWorkers = 4
	}
	if numWorkers > 16 {
		numWorkers = 16
	}

	slog.Info("analytics: starting workers", "workers", numWorkers)
	engine.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go engine.processObservations()
	}

	return engine
}

// Submit queues an observation without blocking. It reports false when the
// queue is full or the engine is closed and the observation was dropped.
func (ae *AnalyticsEngine) Submit(obs Observation) bool {
	ae.closeMu.RLock()
	defer ae.closeMu.RUnlock()
	if ae.closed {
		return false
	}
	select {
	case ae.obsChan <- obs:
		return true
	default:
		slog.Warn("analytics: queue full, dropping observation", "machine_id", obs.MachineID)
		return false
	}
}

// Close stops accepting observations and waits for queued ones to finish.
func (ae *AnalyticsEngine) Close() {
	ae.once.Do(func() {
		ae.closeMu.Lock()
		ae.closed = true
		close(ae.obsChan)
		ae.closeMu.Unlock()
	})
	ae.wg.Wait()
}

func (ae *AnalyticsEngine) processObservations() {
	defer ae.wg.Done()
	for obs := range ae.obsChan {
		ae.process(obs)
	}
}

func (ae *AnalyticsEngine) state(machineID string) *machineState {
	ae.mu.RLock()
	st, ok := ae.machines[machineID]
	ae.mu.RUnlock()
	if ok {
		return st
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()
	if st, ok := ae.machines[machineID]; ok {
		return st
	}
	st = &machineState{
		power:    NewRollingWindow(defaultWindow),
		failures: NewRollingWindow(defaultWindow),
		torque:   NewAnomalyDetector(),
	}
	ae.machines[machineID] = st
	return st
}

// Analyze folds an observation into the machine's state synchronously and
// returns the updated analysis.
func (ae *AnalyticsEngine) Analyze(obs Observation) models.MachineAnalysis {
	st := ae.state(obs.MachineID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.fold(obs)
}

func (st *machineState) fold(obs Observation) models.MachineAnalysis {
	st.power.Add(obs.Reading.PowerFactor)
	st.failures.Add(float64(obs.Label))
	isAnomaly, zScore := st.torque.Detect(obs.Reading.Torque)
	st.samples++
	return models.MachineAnalysis{
		MachineID:          obs.MachineID,
		RollingPowerFactor: st.power.Average(),
		RollingFailureRate: st.failures.Average(),
		IsAnomaly:          isAnomaly,
		ZScore:             zScore,
		Samples:            st.samples,
		ProcessedAt:        time.Now().UTC(),
	}
}

// process holds the machine lock while saving so the stored analysis is
// never older than one already written.
func (ae *AnalyticsEngine) process(obs Observation) {
	st := ae.state(obs.MachineID)
	st.mu.Lock()
	result := st.fold(obs)
	if ae.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := ae.store.SaveAnalysis(ctx, obs.MachineID, result); err != nil {
			slog.Error("analytics: save analysis failed", "machine_id", obs.MachineID, "err", err)
		}
		cancel()
	}
	st.mu.Unlock()

	if result.IsAnomaly {
		slog.Warn("analytics: torque anomaly",
			"machine_id", obs.MachineID,
			"torque", obs.Reading.Torque,
			"z_score", result.ZScore,
			"rolling_power_factor", result.RollingPowerFactor)

		if ae.onAnomaly != nil {
			ae.onAnomaly(obs.MachineID)
		}
	}
}
