package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/features"
)

// MetadataFile is the bundle's metadata file name inside the models directory
const MetadataFile = "model_meta.json"

// Metadata is the persisted training-time configuration
type Metadata struct {
	PollutantParams     []string `json:"pollutant_params"`
	FeatureColumns      []string `json:"feature_columns"`
	LastObservationJSON string   `json:"last_observation_json"`
}

// Bundle is the read-only model configuration shared by every request
type Bundle struct {
	Pollutants     []domain.Pollutant
	FeatureColumns []string
	Models         map[domain.Pollutant]Model
	Snapshot       features.Seed
}

// LaggedPollutants returns every pollutant with a lag-1h feature column, including
// pollutants whose model is missing, in canonical order.
func (b *Bundle) LaggedPollutants() []domain.Pollutant {
	cols := make(map[string]struct{}, len(b.FeatureColumns))
	for _, c := range b.FeatureColumns {
		cols[c] = struct{}{}
	}
	var out []domain.Pollutant
	for _, p := range domain.Pollutants() {
		if _, ok := cols[features.LagName(p.String(), features.LagHours[0])]; ok {
			out = append(out, p)
		}
	}
	return out
}

// RegressorLoader resolves the regressor for one pollutant.
// Returning ErrModelNotFound drops the pollutant from the bundle.
type RegressorLoader func(p domain.Pollutant, columns []string) (Regressor, error)

// LinearLoader loads "{pollutant}_model.json" linear artifacts from dir
func LinearLoader(dir string) RegressorLoader {
	return func(p domain.Pollutant, columns []string) (Regressor, error) {
		return LoadLinearModel(filepath.Join(dir, p.String()+"_model.json"), columns)
	}
}

// LoadBundle reads metadata from dir and resolves one regressor per declared pollutant
func LoadBundle(dir string, load RegressorLoader, logger logrus.FieldLogger) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("forecast: failed to read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("forecast: failed to decode metadata: %w", err)
	}
	return NewBundle(meta, load, logger)
}

// NewBundle builds a bundle from already-decoded metadata
func NewBundle(meta Metadata, load RegressorLoader, logger logrus.FieldLogger) (*Bundle, error) {
	if len(meta.FeatureColumns) == 0 {
		return nil, errors.New("forecast: metadata declares no feature columns")
	}

	b := &Bundle{
		FeatureColumns: meta.FeatureColumns,
		Models:         make(map[domain.Pollutant]Model),
	}
	for _, name := range meta.PollutantParams {
		p, ok := domain.ParsePollutant(name)
		if !ok {
			logger.WithField("param", name).Warn("Unknown pollutant in metadata, skipping")
			continue
		}

		reg, err := load(p, meta.FeatureColumns)
		if errors.Is(err, ErrModelNotFound) {
			logger.WithField("pollutant", p).Warn("Model artifact missing, pollutant will not be forecast")
			continue
		}
		if err != nil {
			return nil, err
		}
		b.Pollutants = append(b.Pollutants, p)
		b.Models[p] = Model{Pollutant: p, Columns: meta.FeatureColumns, Regressor: reg}
	}

	if meta.LastObservationJSON != "" {
		seed, err := ParseSnapshot(meta.LastObservationJSON)
		if err != nil {
			return nil, err
		}
		b.Snapshot = seed
	}

	logger.WithFields(logrus.Fields{
		"models":   len(b.Models),
		"features": len(b.FeatureColumns),
	}).Info("Forecast models loaded")
	return b, nil
}

// HasSnapshot reports whether the bundle carries a training-time seed
func (b *Bundle) HasSnapshot() bool {
	return !b.Snapshot.Timestamp.IsZero() && len(b.Snapshot.State) > 0
}

// ParseSnapshot decodes a records-oriented JSON table and seeds from its last row.
// Null and non-numeric cells other than "datetime" are dropped or read as NaN.
func ParseSnapshot(records string) (features.Seed, error) {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(records), &rows); err != nil {
		return features.Seed{}, fmt.Errorf("forecast: failed to decode snapshot: %w", err)
	}
	if len(rows) == 0 {
		return features.Seed{}, errors.New("forecast: snapshot has no rows")
	}

	row := rows[len(rows)-1]
	ts := domain.ParseTimestamp(row["datetime"])
	if !ts.Valid {
		return features.Seed{}, errors.New("forecast: snapshot has no valid datetime")
	}

	state := features.State{}
	for k, v := range row {
		if k == "datetime" {
			continue
		}
		switch val := v.(type) {
		case float64:
			state[k] = val
		case nil:
			state[k] = math.NaN()
		}
	}
	return features.Seed{Timestamp: ts.Time, State: state}, nil
}
