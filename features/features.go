// Package features derives the diagnostic fields the failure model is
// trained on. Every function here is pure and safe for concurrent use.
package features

import (
	"predictive-maintenance/models"
)

// KelvinOffset converts kelvin to degrees Celsius.
const KelvinOffset = 273.15

// MissingFieldError is returned when a required sensor field is absent.
type MissingFieldError = models.MissingFieldError

// Derive enriches a single reading. It accepts any finite input, including
// values outside the physical range.
func Derive(r models.SensorReading) models.EnrichedReading {
	return models.EnrichedReading{
		SensorReading: r,
		AirTempC:      r.AirTemp - KelvinOffset,
		ProcessTempC:  r.ProcessTemp - KelvinOffset,
		PowerFactor:   r.Torque * float64(r.RPM),
		TempDiff:      r.ProcessTemp - r.AirTemp,
	}
}

// DeriveAll enriches a batch, preserving order.
func DeriveAll(readings []models.SensorReading) []models.EnrichedReading {
	out := make([]models.EnrichedReading, len(readings))
	for i, r := range readings {
		out[i] = Derive(r)
	}
	return out
}

// DeriveRecord enriches a loosely typed record such as a decoded request
// body. The first absent field, in RequiredColumns order, is reported.
// rpm and tool_wear are truncated to integers.
func DeriveRecord(rec map[string]float64) (models.EnrichedReading, error) {
	for _, c := range models.RequiredColumns {
		if _, ok := rec[c]; !ok {
			return models.EnrichedReading{}, &MissingFieldError{Field: c}
		}
	}
	return Derive(models.SensorReading{
		AirTemp:     rec[models.ColAirTemp],
		ProcessTemp: rec[models.ColProcessTemp],
		RPM:         int(rec[models.ColRPM]),
		Torque:      rec[models.ColTorque],
		ToolWear:    int(rec[models.ColToolWear]),
	}), nil
}

// DeriveFrame returns a copy of f with the four derived columns appended.
// Derived columns already present are recomputed in place. An empty frame
// still comes back with the derived columns declared.
func DeriveFrame(f *models.Frame) (*models.Frame, error) {
	cols := make(map[string][]float64, len(models.RequiredColumns))
	for _, c := range models.RequiredColumns {
		v, ok := f.Column(c)
		if !ok {
			return nil, &MissingFieldError{Field: c}
		}
		cols[c] = v
	}

	n := f.Len()
	airC := make([]float64, n)
	procC := make([]float64, n)
	power := make([]float64, n)
	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		air, proc := cols[models.ColAirTemp][i], cols[models.ColProcessTemp][i]
		airC[i] = air - KelvinOffset
		procC[i] = proc - KelvinOffset
		power[i] = cols[models.ColTorque][i] * cols[models.ColRPM][i]
		diff[i] = proc - air
	}

	out := f.Clone()
	for _, c := range []struct {
		name   string
		values []float64
	}{
		{models.ColAirTempC, airC},
		{models.ColProcessTempC, procC},
		{models.ColPowerFactor, power},
		{models.ColTempDiff, diff},
	} {
		if err := out.Set(c.name, c.values); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Vector selects the model inputs from an enriched reading in the order
// given by columns.
func Vector(e models.EnrichedReading, columns []string) ([]float64, error) {
	out := make([]float64, len(columns))
	for i, c := range columns {
		v, ok := e.Value(c)
		if !ok {
			return nil, &MissingFieldError{Field: c}
		}
		out[i] = v
	}
	return out, nil
}

// Matrix selects the model inputs from a derived frame, one row per reading.
func Matrix(f *models.Frame, columns []string) ([][]float64, error) {
	sel, err := f.Select(columns)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, sel.Len())
	for i := range out {
		row := make([]float64, len(columns))
		for j, c := range columns {
			v, _ := sel.Column(c)
			row[j] = v[i]
		}
		out[i] = row
	}
	return out, nil
}
