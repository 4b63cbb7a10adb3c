package models

import (
	"fmt"
	"time"
)

const (
	ColAirTemp     = "air_temp"
	ColProcessTemp = "process_temp"
	ColRPM         = "rpm"
	ColTorque      = "torque"
	ColToolWear    = "tool_wear"

	ColAirTempC     = "air_temp_c"
	ColProcessTempC = "process_temp_c"
	ColPowerFactor  = "power_factor"
	ColTempDiff     = "temp_diff"

	TargetColumn = "target"
)

// RequiredColumns are the raw sensor fields every reading must carry, in the
// order they are checked.
var RequiredColumns = []string{ColAirTemp, ColProcessTemp, ColRPM, ColTorque, ColToolWear}

// DerivedColumns are appended by feature derivation.
var DerivedColumns = []string{ColAirTempC, ColProcessTempC, ColPowerFactor, ColTempDiff}

// DefaultFeatureColumns is the model input layout used when the config does
// not override it.
var DefaultFeatureColumns = []string{
	ColAirTempC, ColProcessTempC, ColRPM, ColTorque, ColToolWear, ColPowerFactor, ColTempDiff,
}

// MissingFieldError reports a required sensor field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// SensorReading is one raw observation. Temperatures are in kelvin, torque in
// Nm, tool wear in minutes.
type SensorReading struct {
	AirTemp     float64   `json:"air_temp"`
	ProcessTemp float64   `json:"process_temp"`
	RPM         int       `json:"rpm"`
	Torque      float64   `json:"torque"`
	ToolWear    int       `json:"tool_wear"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Record returns the five raw fields keyed by column name.
func (r SensorReading) Record() map[string]float64 {
	return map[string]float64{
		ColAirTemp:     r.AirTemp,
		ColProcessTemp: r.ProcessTemp,
		ColRPM:         float64(r.RPM),
		ColTorque:      r.Torque,
		ColToolWear:    float64(r.ToolWear),
	}
}

type EnrichedReading struct {
	SensorReading
	AirTempC     float64 `json:"air_temp_c"`
	ProcessTempC float64 `json:"process_temp_c"`
	PowerFactor  float64 `json:"power_factor"`
	TempDiff     float64 `json:"temp_diff"`
}

// Value returns the named raw or derived field.
func (e EnrichedReading) Value(column string) (float64, bool) {
	switch column {
	case ColAirTemp:
		return e.AirTemp, true
	case ColProcessTemp:
		return e.ProcessTemp, true
	case ColRPM:
		return float64(e.RPM), true
	case ColTorque:
		return e.Torque, true
	case ColToolWear:
		return float64(e.ToolWear), true
	case ColAirTempC:
		return e.AirTempC, true
	case ColProcessTempC:
		return e.ProcessTempC, true
	case ColPowerFactor:
		return e.PowerFactor, true
	case ColTempDiff:
		return e.TempDiff, true
	}
	return 0, false
}

// ReadingRequest is the body accepted by the prediction endpoints. Pointer
// fields let the handler tell an absent field from a zero value.
type ReadingRequest struct {
	AirTemp     *float64 `json:"air_temp"`
	ProcessTemp *float64 `json:"process_temp"`
	RPM         *int     `json:"rpm"`
	Torque      *float64 `json:"torque"`
	ToolWear    *int     `json:"tool_wear"`
	MachineID   string   `json:"machine_id,omitempty"`
}

// ToRecord returns only the fields present in the request.
func (r *ReadingRequest) ToRecord() map[string]float64 {
	rec := make(map[string]float64, len(RequiredColumns))
	if r.AirTemp != nil {
		rec[ColAirTemp] = *r.AirTemp
	}
	if r.ProcessTemp != nil {
		rec[ColProcessTemp] = *r.ProcessTemp
	}
	if r.RPM != nil {
		rec[ColRPM] = float64(*r.RPM)
	}
	if r.Torque != nil {
		rec[ColTorque] = *r.Torque
	}
	if r.ToolWear != nil {
		rec[ColToolWear] = float64(*r.ToolWear)
	}
	return rec
}
