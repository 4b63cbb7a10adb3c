// Package storage keeps the prediction log in PostgreSQL.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"predictive-maintenance/models"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Queryer is the subset of *pgxpool.Pool the log needs.
type Queryer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

type PredictionLog struct {
	db    Queryer
	close func()
}

// Connect opens a connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*PredictionLog, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	return &PredictionLog{db: pool, close: pool.Close}, nil
}

// New wraps an existing pool, connection or transaction.
func New(db Queryer) *PredictionLog {
	return &PredictionLog{db: db}
}

func (l *PredictionLog) Close() {
	if l.close != nil {
		l.close()
	}
}

const createLogs = `
CREATE TABLE IF NOT EXISTS logs (
	id            SERIAL PRIMARY KEY,
	prediction_id UUID,
	timestamp     TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	air_temp      DOUBLE PRECISION,
	process_temp  DOUBLE PRECISION,
	rpm           INTEGER,
	torque        DOUBLE PRECISION,
	tool_wear     INTEGER,
	prediction    INTEGER,
	probability   DOUBLE PRECISION,
	status        TEXT
)`

// Init creates the logs table if it does not exist.
func (l *PredictionLog) Init(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, createLogs); err != nil {
		return fmt.Errorf("storage: create logs table: %w", err)
	}
	return nil
}

const insertLog = `
INSERT INTO logs (prediction_id, timestamp, air_temp, process_temp, rpm, torque, tool_wear, prediction, probability, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (l *PredictionLog) Insert(ctx context.Context, p models.Prediction) error {
	r := p.Reading
	_, err := l.db.Exec(ctx, insertLog,
		p.ID, p.CreatedAt,
		r.AirTemp, r.ProcessTemp, r.RPM, r.Torque, r.ToolWear,
		p.Label, p.Probability, p.Status,
	)
	if err != nil {
		return fmt.Errorf("storage: insert prediction %s: %w", p.ID, err)
	}
	return nil
}

const selectHistory = `
SELECT id, COALESCE(prediction_id::text, ''), timestamp, air_temp, process_temp, rpm, torque, tool_wear, prediction, probability, status
FROM logs ORDER BY id DESC LIMIT $1`

// History returns the newest records first.
func (l *PredictionLog) History(ctx context.Context, limit int) ([]models.LogRecord, error) {
	rows, err := l.db.Query(ctx, selectHistory, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("storage: query history: %w", err)
	}
	defer rows.Close()

	out := []models.LogRecord{}
	for rows.Next() {
		var rec models.LogRecord
		if err := rows.Scan(
			&rec.ID, &rec.PredictionID, &rec.Timestamp,
			&rec.AirTemp, &rec.ProcessTemp, &rec.RPM, &rec.Torque, &rec.ToolWear,
			&rec.Label, &rec.Probability, &rec.Status,
		); err != nil {
			return nil, fmt.Errorf("storage: scan history: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: read history: %w", err)
	}
	return out, nil
}

// ClampLimit bounds a requested history size to [1, MaxHistoryLimit];
// non-positive values select DefaultHistoryLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	}
	return limit
}
