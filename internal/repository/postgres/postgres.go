package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smartcity/aqforecast/internal/domain"
)

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the repository uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool DB) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the tables if they do not exist
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to apply schema: %w", err)
	}
	return nil
}

// SaveObservation persists one row per pollutant value, replacing a previous save of the same instant
func (r *PostgresRepository) SaveObservation(ctx context.Context, locationID int64, obs domain.WideObservation) error {
	query := `
		INSERT INTO aq_observations (location_id, pollutant, value, observed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (location_id, pollutant, observed_at) DO UPDATE SET value = EXCLUDED.value
	`

	return r.inTx(ctx, func(tx pgx.Tx) error {
		for _, p := range domain.Pollutants() {
			v, ok := obs.Value(p)
			if !ok {
				continue
			}
			if _, err := tx.Exec(ctx, query, locationID, p.String(), v, obs.Timestamp); err != nil {
				return fmt.Errorf("postgres: failed to save observation: %w", err)
			}
		}
		return nil
	})
}

// SaveForecast persists a forecast run header and its steps
func (r *PostgresRepository) SaveForecast(ctx context.Context, result domain.ForecastResult) error {
	runQuery := `
		INSERT INTO forecast_runs (run_id, location_id, hours, max_aqi, is_fallback, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stepQuery := `
		INSERT INTO forecast_steps (run_id, step_time, pollutants, aqi, dominant_pollutant, is_obs)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, runQuery,
			result.RunID, result.LocationID, result.Hours, result.MaxIndex, result.Fallback, result.GeneratedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: failed to save forecast run: %w", err)
		}

		for _, step := range result.Steps {
			values, err := json.Marshal(step.Pollutants)
			if err != nil {
				return fmt.Errorf("postgres: failed to encode step values: %w", err)
			}

			// Nullable columns for steps without an index
			var index, dominant any
			if step.Index != nil {
				index = step.Index.Index
				dominant = step.Index.DominantPollutant.String()
			}

			if _, err := tx.Exec(ctx, stepQuery,
				result.RunID, step.Timestamp, values, index, dominant, step.Observed,
			); err != nil {
				return fmt.Errorf("postgres: failed to save forecast step: %w", err)
			}
		}
		return nil
	})
}

// GetHourlyAverages retrieves hourly pollutant means in [from, to), oldest first
func (r *PostgresRepository) GetHourlyAverages(ctx context.Context, locationID int64, from, to time.Time) ([]domain.HourlyAverage, error) {
	query := `
		SELECT date_trunc('hour', observed_at) AS hour, pollutant, AVG(value)
		FROM aq_observations
		WHERE location_id = $1 AND observed_at >= $2 AND observed_at < $3
		GROUP BY 1, 2
		ORDER BY 1, 2
	`

	rows, err := r.pool.Query(ctx, query, locationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query hourly averages: %w", err)
	}
	defer rows.Close()

	var results []domain.HourlyAverage
	for rows.Next() {
		var (
			hour  time.Time
			code  string
			value float64
		)
		if err := rows.Scan(&hour, &code, &value); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan hourly average: %w", err)
		}
		p, ok := domain.ParsePollutant(code)
		if !ok {
			continue
		}
		results = append(results, domain.HourlyAverage{Hour: hour.UTC(), Pollutant: p, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read hourly averages: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit: %w", err)
	}
	return nil
}
