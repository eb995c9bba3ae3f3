package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// LinearModel is a linear regressor over a fixed column order.
// NaN inputs contribute nothing, matching a model trained with missing values imputed to zero.
type LinearModel struct {
	Intercept    float64
	Coefficients []float64
}

// linearArtifact is the on-disk form: coefficients keyed by feature name
type linearArtifact struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// NewLinearModel lays named coefficients out in column order; unnamed columns get zero weight
func NewLinearModel(intercept float64, coefficients map[string]float64, columns []string) *LinearModel {
	m := &LinearModel{Intercept: intercept, Coefficients: make([]float64, len(columns))}
	for i, c := range columns {
		m.Coefficients[i] = coefficients[c]
	}
	return m
}

// LoadLinearModel reads a linear model artifact from path
func LoadLinearModel(path string, columns []string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("forecast: failed to read model %s: %w", path, err)
	}

	var art linearArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("forecast: failed to decode model %s: %w", path, err)
	}
	return NewLinearModel(art.Intercept, art.Coefficients, columns), nil
}

// Predict returns intercept + sum(coef * x)
func (m *LinearModel) Predict(_ context.Context, features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(features), len(m.Coefficients))
	}
	y := m.Intercept
	for i, x := range features {
		if math.IsNaN(x) {
			continue
		}
		y += m.Coefficients[i] * x
	}
	return y, nil
}

// NumFeatures returns the expected input length
func (m *LinearModel) NumFeatures() int {
	return len(m.Coefficients)
}
