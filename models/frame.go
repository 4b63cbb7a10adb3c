package models

import (
	"fmt"
	"math"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Frame is a numeric table of sensor data backed by a gota DataFrame. Every
// column is a float series; columns keep their declaration order.
//
// A frame with no columns holds the zero DataFrame, which gota cannot build
// through its constructors.
type Frame struct {
	df dataframe.DataFrame
}

// NewFrame returns an empty frame with the given columns declared.
// Duplicate names are declared once.
func NewFrame(columns ...string) *Frame {
	var cols []series.Series
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		cols = append(cols, series.New([]float64{}, series.Float, c))
	}
	return fromSeries(cols)
}

// FrameFromReadings builds a frame holding the five raw columns.
func FrameFromReadings(readings []SensorReading) *Frame {
	cols := make(map[string][]float64, len(RequiredColumns))
	for _, r := range readings {
		for c, v := range r.Record() {
			cols[c] = append(cols[c], v)
		}
	}
	out := make([]series.Series, len(RequiredColumns))
	for i, c := range RequiredColumns {
		values := cols[c]
		if values == nil {
			values = []float64{}
		}
		out[i] = series.New(values, series.Float, c)
	}
	return fromSeries(out)
}

// FromDataFrame converts every column of df to float. Integer and boolean
// columns convert exactly; text becomes NaN, so callers select numeric
// columns first.
func FromDataFrame(df dataframe.DataFrame) (*Frame, error) {
	if err := df.Error(); err != nil {
		return nil, err
	}
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, series.New(df.Col(name).Float(), series.Float, name))
	}
	return fromSeries(cols), nil
}

func fromSeries(cols []series.Series) *Frame {
	if len(cols) == 0 {
		return &Frame{}
	}
	return &Frame{df: dataframe.New(cols...)}
}

func (f *Frame) Len() int { return f.df.Nrow() }

// Columns returns the column names in declaration order.
func (f *Frame) Columns() []string {
	return f.df.Names()
}

func (f *Frame) Has(column string) bool {
	return slices.Contains(f.df.Names(), column)
}

// Column returns a copy of the named column.
func (f *Frame) Column(column string) ([]float64, bool) {
	if !f.Has(column) {
		return nil, false
	}
	return f.df.Col(column).Float(), true
}

// Set adds or replaces a column. A replaced column keeps its position.
func (f *Frame) Set(column string, values []float64) error {
	s := series.New(values, series.Float, column)
	if f.df.Ncol() == 0 {
		f.df = dataframe.New(s)
		return f.df.Error()
	}
	if len(values) != f.Len() {
		return fmt.Errorf("column %q has %d rows, frame has %d", column, len(values), f.Len())
	}
	df := f.df.Mutate(s)
	if err := df.Error(); err != nil {
		return fmt.Errorf("set column %q: %w", column, err)
	}
	f.df = df
	return nil
}

// AppendRow appends one row given in column declaration order.
func (f *Frame) AppendRow(values []float64) error {
	names := f.df.Names()
	if len(values) != len(names) {
		return fmt.Errorf("row has %d values, frame has %d columns", len(values), len(names))
	}
	if len(names) == 0 {
		return nil
	}
	row := make([]series.Series, len(names))
	for i, name := range names {
		row[i] = series.New([]float64{values[i]}, series.Float, name)
	}
	df := f.df.RBind(dataframe.New(row...))
	if err := df.Error(); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	f.df = df
	return nil
}

// Row returns row i keyed by column name.
func (f *Frame) Row(i int) map[string]float64 {
	names := f.df.Names()
	row := make(map[string]float64, len(names))
	for j, name := range names {
		row[name] = f.df.Elem(i, j).Float()
	}
	return row
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(columns []string) (*Frame, error) {
	for _, c := range columns {
		if !f.Has(c) {
			return nil, &MissingFieldError{Field: c}
		}
	}
	if len(columns) == 0 {
		return &Frame{}, nil
	}
	df := f.df.Select(columns)
	if err := df.Error(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return &Frame{df: df}, nil
}

// Rename returns a copy of the frame with columns renamed per mapping.
// Columns absent from mapping keep their name.
func (f *Frame) Rename(mapping map[string]string) *Frame {
	out := f.Clone()
	names := out.df.Names()
	for i, name := range names {
		if to, ok := mapping[name]; ok {
			names[i] = to
		}
	}
	if len(names) > 0 {
		// SetNames only fails on a length mismatch.
		_ = out.df.SetNames(names...)
	}
	return out
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	if f.df.Ncol() == 0 {
		return &Frame{}
	}
	return &Frame{df: f.df.Copy()}
}

// Readings converts the raw columns back into readings. Integer fields are
// truncated toward zero.
func (f *Frame) Readings() ([]SensorReading, error) {
	cols := make(map[string][]float64, len(RequiredColumns))
	for _, c := range RequiredColumns {
		v, ok := f.Column(c)
		if !ok {
			return nil, &MissingFieldError{Field: c}
		}
		cols[c] = v
	}
	out := make([]SensorReading, f.Len())
	for i := range out {
		out[i] = SensorReading{
			AirTemp:     cols[ColAirTemp][i],
			ProcessTemp: cols[ColProcessTemp][i],
			RPM:         int(math.Trunc(cols[ColRPM][i])),
			Torque:      cols[ColTorque][i],
			ToolWear:    int(math.Trunc(cols[ColToolWear][i])),
		}
	}
	return out, nil
}
