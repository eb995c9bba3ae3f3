package forecast

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/aqforecast/internal/domain"
)

const testMeta = `{
  "pollutant_params": ["pm25", "o3", "bogus"],
  "feature_columns": ["temperature", "pm25_lag_1h"],
  "last_observation_json": "[{\"datetime\":\"2024-05-01T10:00:00.000Z\",\"pm25\":12.5,\"pm25_lag_1h\":11.0,\"temperature\":null,\"station\":\"x\"}]"
}`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, MetadataFile, testMeta)
	writeFile(t, dir, "pm25_model.json", `{"intercept": 2, "coefficients": {"pm25_lag_1h": 0.5}}`)

	logger, hook := test.NewNullLogger()
	b, err := LoadBundle(dir, LinearLoader(dir), logger)
	require.NoError(t, err)

	assert.Equal(t, []domain.Pollutant{domain.PM25}, b.Pollutants, "pollutants without a model are not listed")
	assert.Equal(t, []string{"temperature", "pm25_lag_1h"}, b.FeatureColumns)
	require.Contains(t, b.Models, domain.PM25)
	assert.NotContains(t, b.Models, domain.O3)

	y, err := b.Models[domain.PM25].Regressor.Predict(context.Background(), []float64{math.NaN(), 10})
	require.NoError(t, err)
	assert.Equal(t, 7.0, y)

	require.True(t, b.HasSnapshot())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), b.Snapshot.Timestamp)
	assert.Equal(t, 12.5, b.Snapshot.State["pm25"])
	assert.True(t, math.IsNaN(b.Snapshot.State["temperature"]))
	assert.NotContains(t, b.Snapshot.State, "station")

	assert.NotEmpty(t, hook.AllEntries())
}

func TestLoadBundle_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := LoadBundle(t.TempDir(), LinearLoader(""), logger)
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, dir, MetadataFile, `{"pollutant_params": ["pm25"], "feature_columns": ["a"]}`)
	writeFile(t, dir, "pm25_model.json", `not json`)
	_, err = LoadBundle(dir, LinearLoader(dir), logger)
	assert.Error(t, err, "a corrupt artifact is fatal")

	_, err = NewBundle(Metadata{PollutantParams: []string{"pm25"}}, LinearLoader(dir), logger)
	assert.Error(t, err)
}

func TestParseSnapshot_Errors(t *testing.T) {
	_, err := ParseSnapshot(`[]`)
	assert.Error(t, err)
	_, err = ParseSnapshot(`[{"pm25": 1}]`)
	assert.Error(t, err)
	_, err = ParseSnapshot(`{`)
	assert.Error(t, err)
}

func TestLinearModel_Predict(t *testing.T) {
	m := NewLinearModel(1, map[string]float64{"a": 2, "b": -1}, []string{"a", "b", "c"})
	assert.Equal(t, 3, m.NumFeatures())

	y, err := m.Predict(context.Background(), []float64{3, 4, 100})
	require.NoError(t, err)
	assert.Equal(t, 3.0, y)

	y, err = m.Predict(context.Background(), []float64{3, math.NaN(), 0})
	require.NoError(t, err)
	assert.Equal(t, 7.0, y)

	_, err = m.Predict(context.Background(), []float64{1})
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestLoadLinearModel_NotFound(t *testing.T) {
	_, err := LoadLinearModel(filepath.Join(t.TempDir(), "nope.json"), nil)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestBundle_LaggedPollutants(t *testing.T) {
	b := &Bundle{
		Pollutants:     []domain.Pollutant{domain.PM25},
		FeatureColumns: []string{"temperature", "pm25_lag_1h", "pm10_lag_1h", "pm10_lag_2h", "o3_rolling_mean_6h", "aqi_lag_1h"},
	}
	assert.Equal(t, []domain.Pollutant{domain.PM10, domain.PM25}, b.LaggedPollutants())
	assert.Empty(t, (&Bundle{}).LaggedPollutants())
}
