package models

import "time"

type Prediction struct {
	ID          string          `json:"id"`
	MachineID   string          `json:"machine_id,omitempty"`
	Reading     EnrichedReading `json:"reading"`
	Features    []float64       `json:"features"`
	Label       int             `json:"prediction"`
	Probability float64         `json:"probability"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// LogRecord is one row of the prediction log.
type LogRecord struct {
	ID           int64     `json:"id"`
	PredictionID string    `json:"prediction_id"`
	Timestamp    time.Time `json:"timestamp"`
	AirTemp      float64   `json:"air_temp"`
	ProcessTemp  float64   `json:"process_temp"`
	RPM          int       `json:"rpm"`
	Torque       float64   `json:"torque"`
	ToolWear     int       `json:"tool_wear"`
	Label        int       `json:"prediction"`
	Probability  float64   `json:"probability"`
	Status       string    `json:"status"`
}

type MachineAnalysis struct {
	MachineID          string    `json:"machine_id"`
	RollingPowerFactor float64   `json:"rolling_power_factor"`
	RollingFailureRate float64   `json:"rolling_failure_rate"`
	IsAnomaly          bool      `json:"is_anomaly"`
	ZScore             float64   `json:"z_score"`
	Samples            int       `json:"samples"`
	ProcessedAt        time.Time `json:"processed_at"`
}
