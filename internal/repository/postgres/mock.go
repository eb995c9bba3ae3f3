package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/aqforecast/internal/domain"
)

// MockRepository implements domain.DataRepository in memory for testing/demo mode.
// Hourly averages are computed from saved observations.
type MockRepository struct {
	mu           sync.Mutex
	observations map[int64][]observationRow
	forecasts    []domain.ForecastResult
}

type observationRow struct {
	pollutant domain.Pollutant
	value     float64
	at        time.Time
}

// NewMockRepository creates a new mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{observations: make(map[int64][]observationRow)}
}

// SaveObservation stores the observation's values
func (r *MockRepository) SaveObservation(ctx context.Context, locationID int64, obs domain.WideObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, v := range obs.Values {
		r.observations[locationID] = append(r.observations[locationID], observationRow{pollutant: p, value: v, at: obs.Timestamp.UTC()})
	}
	return nil
}

// SaveForecast keeps the run in memory
func (r *MockRepository) SaveForecast(ctx context.Context, result domain.ForecastResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts = append(r.forecasts, result)
	return nil
}

// Forecasts returns the saved runs
func (r *MockRepository) Forecasts() []domain.ForecastResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ForecastResult(nil), r.forecasts...)
}

// GetHourlyAverages averages stored values per hour and pollutant in [from, to)
func (r *MockRepository) GetHourlyAverages(ctx context.Context, locationID int64, from, to time.Time) ([]domain.HourlyAverage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type bucket struct {
		hour time.Time
		p    domain.Pollutant
	}
	sums := make(map[bucket][2]float64)
	for _, row := range r.observations[locationID] {
		if row.at.Before(from) || !row.at.Before(to) {
			continue
		}
		k := bucket{hour: row.at.Truncate(time.Hour), p: row.pollutant}
		acc := sums[k]
		sums[k] = [2]float64{acc[0] + row.value, acc[1] + 1}
	}

	out := make([]domain.HourlyAverage, 0, len(sums))
	for k, acc := range sums {
		out = append(out, domain.HourlyAverage{Hour: k.hour, Pollutant: k.p, Value: acc[0] / acc[1]})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Hour.Equal(out[j].Hour) {
			return out[i].Hour.Before(out[j].Hour)
		}
		return out[i].Pollutant < out[j].Pollutant
	})
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
