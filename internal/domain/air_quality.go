package domain

import "time"

// Reading is one timestamped parameter value reported by a sensor source
type Reading struct {
	Parameter      Pollutant `json:"parameter"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit"`
	TimestampUTC   Timestamp `json:"timestamp_utc"`
	TimestampLocal string    `json:"timestamp_local,omitempty"`
}

// WideObservation is a single observation row: one value per pollutant at one UTC instant
type WideObservation struct {
	Timestamp time.Time             `json:"timestamp"`
	Values    map[Pollutant]float64 `json:"values"`
	Index     *IndexResult          `json:"index,omitempty"`
}

// Value returns the observed concentration for p, if present
func (o WideObservation) Value(p Pollutant) (float64, bool) {
	v, ok := o.Values[p]
	return v, ok
}

// IndexResult is an aggregated AQI with the pollutant that produced it
type IndexResult struct {
	Index                 int       `json:"aqi"`
	DominantPollutant     Pollutant `json:"dominant_pollutant"`
	DominantConcentration float64   `json:"dominant_concentration"`
	Timestamp             time.Time `json:"timestamp"`
}

// Measurement is a reading annotated with its own sub-index, for display
type Measurement struct {
	Parameter Pollutant `json:"parameter"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	SubIndex  *int      `json:"aqi"`
	Timestamp Timestamp `json:"timestamp"`
}

// PredictionStep is one hour of a recursive forecast
type PredictionStep struct {
	Timestamp  time.Time             `json:"timestamp"`
	Pollutants map[Pollutant]float64 `json:"pollutants"`
	Index      *IndexResult          `json:"index"`
	// Observed marks the single step emitted in fallback mode
	Observed bool `json:"is_obs,omitempty"`
}

// Location is station metadata from the reading source
type Location struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Latitude    float64   `json:"lat"`
	Longitude   float64   `json:"lon"`
	LastUpdated Timestamp `json:"last_updated"`
}

// HourlyAverage is a persisted hourly mean for one pollutant at one location
type HourlyAverage struct {
	Hour      time.Time `json:"hour"`
	Pollutant Pollutant `json:"pollutant"`
	Value     float64   `json:"value"`
}

// ObservationResponse wraps an observation with per-reading detail
type ObservationResponse struct {
	Location     Location        `json:"location"`
	Observation  WideObservation `json:"observation"`
	Measurements []Measurement   `json:"measurements"`
	Category     string          `json:"category,omitempty"`
	Success      bool            `json:"success"`
}

// ForecastResult is the outcome of a forecast request
type ForecastResult struct {
	RunID       string           `json:"run_id"`
	LocationID  int64            `json:"location_id"`
	Hours       int              `json:"hours"`
	Observation *WideObservation `json:"observation,omitempty"`
	Steps       []PredictionStep `json:"predictions"`
	MaxIndex    *int             `json:"max_aqi"`
	Fallback    bool             `json:"is_fallback"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// NowCastResult is a smoothed index computed from recent hourly history
type NowCastResult struct {
	LocationID int64                 `json:"location_id"`
	Values     map[Pollutant]float64 `json:"values"`
	Index      *IndexResult          `json:"index"`
}
