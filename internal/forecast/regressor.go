// Package forecast runs the recursive multi-hour pollutant forecast.
package forecast

import (
	"context"
	"errors"

	"github.com/smartcity/aqforecast/internal/domain"
)

var (
	// ErrHorizonOutOfRange is returned for a horizon outside [1, MaxHorizon]
	ErrHorizonOutOfRange = errors.New("forecast: horizon out of range")
	// ErrFeatureMismatch is returned when a feature array does not match a model's column count
	ErrFeatureMismatch = errors.New("forecast: feature count mismatch")
	// ErrModelNotFound is returned when a pollutant has no model artifact
	ErrModelNotFound = errors.New("forecast: model not found")
	// ErrNoSeedTime is returned when the seed carries no reference timestamp
	ErrNoSeedTime = errors.New("forecast: seed has no timestamp")
)

// Regressor is a pre-trained single-output regression model
type Regressor interface {
	Predict(ctx context.Context, features []float64) (float64, error)
	NumFeatures() int
}

// Model binds a regressor to the pollutant it predicts and the column order it expects
type Model struct {
	Pollutant domain.Pollutant
	Columns   []string
	Regressor Regressor
}
