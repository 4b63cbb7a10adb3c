// Package dataset reads and writes the sensor CSV files used for training.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"math"
	"sort"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"predictive-maintenance/models"
)

// uciColumns maps the AI4I 2020 headers to the pipeline's column names.
var uciColumns = map[string]string{
	"UDI":                     "id",
	"Air temperature [K]":     models.ColAirTemp,
	"Process temperature [K]": models.ColProcessTemp,
	"Rotational speed [rpm]":  models.ColRPM,
	"Torque [Nm]":             models.ColTorque,
	"Tool wear [min]":         models.ColToolWear,
	"Machine failure":         models.TargetColumn,
}

// RenameUCI renames raw AI4I columns. Frames without a UDI column are
// returned unchanged.
func RenameUCI(f *models.Frame) *models.Frame {
	if !f.Has("UDI") {
		return f
	}
	return f.Rename(uciColumns)
}

// ReadCSV parses a CSV with a header row. Columns whose first value is not
// a number (product ids, machine type letters) are skipped; any later
// non-numeric value in a kept column is an error.
func ReadCSV(r io.Reader) (*models.Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read csv: %w", err)
	}
	switch len(records) {
	case 0:
		return models.NewFrame(), nil
	case 1:
		// gota refuses header-only input.
		return models.NewFrame(records[0]...), nil
	}

	df := dataframe.LoadRecords(records)
	if err := df.Error(); err != nil {
		return nil, fmt.Errorf("dataset: load records: %w", err)
	}

	var keep []string
	types := df.Types()
	for i, name := range df.Names() {
		switch types[i] {
		case series.Int, series.Float:
			keep = append(keep, name)
		case series.String:
			if _, err := strconv.ParseFloat(records[1][i], 64); err != nil {
				continue
			}
			for n, rec := range records[1:] {
				if _, err := strconv.ParseFloat(rec[i], 64); err != nil {
					return nil, fmt.Errorf("dataset: row %d column %q: %w", n+1, name, err)
				}
			}
		}
	}
	if len(keep) == 0 {
		return models.NewFrame(), nil
	}
	return models.FromDataFrame(df.Select(keep))
}

// WriteCSV writes the frame with a header row.
func WriteCSV(w io.Writer, f *models.Frame) error {
	cw := csv.NewWriter(w)
	cols := f.Columns()
	if err := cw.Write(cols); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for i := 0; i < f.Len(); i++ {
		row := f.Row(i)
		for j, c := range cols {
			rec[j] = strconv.FormatFloat(row[c], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func LoadCSV(path string) (*models.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %q: %w", path, err)
	}
	defer file.Close()
	return ReadCSV(file)
}

// SaveCSV writes the frame to path, creating parent directories.
func SaveCSV(path string, f *models.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dataset: create dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create %q: %w", path, err)
	}
	if err := WriteCSV(file, f); err != nil {
		file.Close()
		return fmt.Errorf("dataset: write %q: %w", path, err)
	}
	return file.Close()
}

// Ingest returns the raw dataset, downloading it to rawPath on first use.
func Ingest(ctx context.Context, client *http.Client, url, rawPath string) (*models.Frame, error) {
	if _, err := os.Stat(rawPath); err == nil {
		slog.Info("dataset: raw data already present", "path", rawPath)
		return LoadCSV(rawPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dataset: stat %q: %w", rawPath, err)
	}

	slog.Info("dataset: downloading", "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dataset: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset: download: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return nil, fmt.Errorf("dataset: create dir: %w", err)
	}
	file, err := os.Create(rawPath)
	if err != nil {
		return nil, fmt.Errorf("dataset: create %q: %w", rawPath, err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return nil, fmt.Errorf("dataset: save %q: %w", rawPath, err)
	}
	if err := file.Close(); err != nil {
		return nil, err
	}
	slog.Info("dataset: saved", "path", rawPath)
	return LoadCSV(rawPath)
}

// Labels returns the target column as integer labels.
func Labels(f *models.Frame) ([]int, error) {
	col, ok := f.Column(models.TargetColumn)
	if !ok {
		return nil, &models.MissingFieldError{Field: models.TargetColumn}
	}
	out := make([]int, len(col))
	for i, v := range col {
		out[i] = int(v)
	}
	return out, nil
}

// Correlation is the Pearson correlation of one column with the target.
type Correlation struct {
	Column string
	Value  float64
}

// TargetCorrelations correlates every other column with the target,
// strongest first. Constant columns have no correlation and are left out.
func TargetCorrelations(f *models.Frame) ([]Correlation, error) {
	target, ok := f.Column(models.TargetColumn)
	if !ok {
		return nil, &models.MissingFieldError{Field: models.TargetColumn}
	}
	var out []Correlation
	for _, c := range f.Columns() {
		if c == models.TargetColumn {
			continue
		}
		col, _ := f.Column(c)
		r := stat.Correlation(col, target, nil)
		if math.IsNaN(r) {
			continue
		}
		out = append(out, Correlation{Column: c, Value: r})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value) > math.Abs(out[j].Value)
	})
	return out, nil
}
