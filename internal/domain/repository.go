package domain

import (
	"context"
	"time"
)

// DataRepository defines the interface for data persistence
// This follows the Dependency Inversion Principle - domain defines the interface
type DataRepository interface {
	// SaveObservation persists an assembled observation for a location
	SaveObservation(ctx context.Context, locationID int64, obs WideObservation) error

	// SaveForecast persists a forecast run and its steps
	SaveForecast(ctx context.Context, result ForecastResult) error

	// GetHourlyAverages retrieves hourly pollutant means, oldest first
	GetHourlyAverages(ctx context.Context, locationID int64, from, to time.Time) ([]HourlyAverage, error)

	// Health checks database connectivity
	Health(ctx context.Context) error
}
