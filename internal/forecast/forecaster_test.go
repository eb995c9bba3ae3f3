package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/features"
)

var seedTime = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

type fixedRegressor struct {
	n     int
	value float64
	err   error
}

func (r fixedRegressor) Predict(context.Context, []float64) (float64, error) {
	return r.value, r.err
}

func (r fixedRegressor) NumFeatures() int {
	return r.n
}

type recordingRegressor struct {
	*LinearModel
	inputs [][]float64
}

func (r *recordingRegressor) Predict(ctx context.Context, x []float64) (float64, error) {
	r.inputs = append(r.inputs, append([]float64(nil), x...))
	return r.LinearModel.Predict(ctx, x)
}

func newTestForecaster() (*Forecaster, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewForecaster(aqi.NewDefaultCalculator(), logger), hook
}

func model(p domain.Pollutant, columns []string, r Regressor) Model {
	return Model{Pollutant: p, Columns: columns, Regressor: r}
}

func TestForecast_MissingModelSkipsOnlyThatPollutant(t *testing.T) {
	cols := []string{"pm25_lag_1h", features.FeatureHour}
	f, _ := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models: map[domain.Pollutant]Model{
			domain.PM25: model(domain.PM25, cols, fixedRegressor{n: 2, value: 10}),
			domain.CO:   model(domain.CO, cols, fixedRegressor{n: 2, value: 1}),
		},
		Seed:           features.Seed{Timestamp: seedTime, State: features.State{"pm25_lag_1h": 8}},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25, domain.CO, domain.O3},
		Horizon:        3,
	})
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for i, s := range steps {
		assert.Equal(t, seedTime.Add(time.Duration(i+1)*time.Hour), s.Timestamp)
		assert.Equal(t, map[domain.Pollutant]float64{domain.PM25: 10, domain.CO: 1}, s.Pollutants)
		require.NotNil(t, s.Index)
		assert.Equal(t, domain.PM25, s.Index.DominantPollutant)
	}
}

func TestForecast_HorizonBounds(t *testing.T) {
	f, _ := newTestForecaster()
	seed := features.Seed{Timestamp: seedTime}

	for _, h := range []int{0, -1, MaxHorizon + 1} {
		_, err := f.Forecast(context.Background(), Request{Seed: seed, Horizon: h})
		assert.ErrorIs(t, err, ErrHorizonOutOfRange, "horizon %d", h)
	}

	steps, err := f.Forecast(context.Background(), Request{Seed: seed, Horizon: MaxHorizon})
	require.NoError(t, err)
	assert.Len(t, steps, MaxHorizon)
}

func TestForecast_RequiresSeedTimestamp(t *testing.T) {
	f, _ := newTestForecaster()
	_, err := f.Forecast(context.Background(), Request{Horizon: 1})
	assert.ErrorIs(t, err, ErrNoSeedTime)
}

func TestForecast_PredictionsFeedLagChain(t *testing.T) {
	cols := []string{"pm25_lag_1h", "pm25_lag_2h"}
	reg := &recordingRegressor{LinearModel: NewLinearModel(1, map[string]float64{"pm25_lag_1h": 1}, cols)}
	f, _ := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models:         map[domain.Pollutant]Model{domain.PM25: model(domain.PM25, cols, reg)},
		Seed:           features.Seed{Timestamp: seedTime, State: features.State{"pm25_lag_1h": 10, "pm25_lag_2h": 7}},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25},
		Horizon:        3,
	})
	require.NoError(t, err)

	var got []float64
	for _, s := range steps {
		got = append(got, s.Pollutants[domain.PM25])
	}
	assert.Equal(t, []float64{11, 12, 13}, got)

	require.Len(t, reg.inputs, 3)
	assert.Equal(t, []float64{10, 7}, reg.inputs[0])
	assert.Equal(t, []float64{11, 10}, reg.inputs[1])
	assert.Equal(t, []float64{12, 11}, reg.inputs[2])
}

func TestForecast_LagsOfUnmodeledPollutantHold(t *testing.T) {
	cols := []string{"pm10_lag_1h", "pm10_lag_2h", "pm25_lag_1h"}
	reg := &recordingRegressor{LinearModel: NewLinearModel(0, map[string]float64{"pm10_lag_1h": 1}, cols)}
	f, _ := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models: map[domain.Pollutant]Model{domain.PM25: model(domain.PM25, cols, reg)},
		Seed: features.Seed{
			Timestamp: seedTime,
			State:     features.State{"pm10_lag_1h": 40, "pm10_lag_2h": 38, "pm25_lag_1h": 10},
		},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25, domain.PM10},
		Horizon:        3,
	})
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for _, s := range steps {
		assert.Equal(t, map[domain.Pollutant]float64{domain.PM25: 40}, s.Pollutants)
	}
	require.Len(t, reg.inputs, 3)
	assert.Equal(t, []float64{40, 38, 10}, reg.inputs[0])
	assert.Equal(t, []float64{40, 38, 40}, reg.inputs[1])
	assert.Equal(t, []float64{40, 38, 40}, reg.inputs[2])
}

func TestForecast_FeatureMismatchSkippedAndLogged(t *testing.T) {
	cols := []string{"pm25_lag_1h"}
	f, hook := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models: map[domain.Pollutant]Model{
			domain.PM25: model(domain.PM25, cols, fixedRegressor{n: 5, value: 10}),
			domain.NO2:  model(domain.NO2, cols, fixedRegressor{n: 1, value: 20}),
		},
		Seed:           features.Seed{Timestamp: seedTime},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25, domain.NO2},
		Horizon:        2,
	})
	require.NoError(t, err)

	for _, s := range steps {
		assert.Equal(t, map[domain.Pollutant]float64{domain.NO2: 20}, s.Pollutants)
	}

	var mismatches int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			mismatches++
		}
	}
	assert.Equal(t, 2, mismatches)
}

func TestForecast_RegressorErrorSkipped(t *testing.T) {
	cols := []string{"pm25_lag_1h"}
	f, _ := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models: map[domain.Pollutant]Model{
			domain.PM25: model(domain.PM25, cols, fixedRegressor{n: 1, err: errors.New("remote down")}),
		},
		Seed:           features.Seed{Timestamp: seedTime},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25},
		Horizon:        1,
	})
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Pollutants)
	assert.Nil(t, steps[0].Index)
}

func TestForecast_ClampsNegative(t *testing.T) {
	cols := []string{"pm25_lag_1h"}
	f, _ := newTestForecaster()

	steps, err := f.Forecast(context.Background(), Request{
		Models:         map[domain.Pollutant]Model{domain.O3: model(domain.O3, cols, NewLinearModel(-5, nil, cols))},
		Seed:           features.Seed{Timestamp: seedTime},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.O3},
		Horizon:        1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, steps[0].Pollutants[domain.O3])
}

func TestForecast_WeatherExactHourThenHeld(t *testing.T) {
	cols := []string{domain.FeatureTemperature}
	temp := NewLinearModel(0, map[string]float64{domain.FeatureTemperature: 1}, cols)
	weather := domain.WeatherForecast{}
	weather.Set(seedTime.Add(time.Hour), domain.WeatherPoint{Temperature: 30, Humidity: 50, Pressure: 1000})
	f, _ := newTestForecaster()

	run := func(w domain.WeatherForecast) []float64 {
		steps, err := f.Forecast(context.Background(), Request{
			Models:         map[domain.Pollutant]Model{domain.CO: model(domain.CO, cols, temp)},
			Seed:           features.Seed{Timestamp: seedTime, State: features.State{domain.FeatureTemperature: 20}},
			FeatureColumns: cols,
			Pollutants:     []domain.Pollutant{domain.CO},
			Horizon:        3,
			Weather:        w,
		})
		require.NoError(t, err)
		out := make([]float64, 0, len(steps))
		for _, s := range steps {
			out = append(out, s.Pollutants[domain.CO])
		}
		return out
	}

	assert.Equal(t, []float64{30, 30, 30}, run(weather))
	assert.Equal(t, []float64{20, 20, 20}, run(nil))
}

func TestForecast_Deterministic(t *testing.T) {
	cols := features.DefaultColumns([]domain.Pollutant{domain.PM25, domain.O3})
	coefs := map[string]float64{"pm25_lag_1h": 0.8, "pm25_lag_24h": 0.1, features.FeatureHourSin: 2}
	req := Request{
		Models: map[domain.Pollutant]Model{
			domain.PM25: model(domain.PM25, cols, NewLinearModel(1.5, coefs, cols)),
			domain.O3:   model(domain.O3, cols, NewLinearModel(0.03, nil, cols)),
		},
		Seed: features.Seed{Timestamp: seedTime, State: features.State{
			"pm25_lag_1h": 14, "pm25_lag_24h": 9, "aqi_lag_1h": 55,
		}},
		FeatureColumns: cols,
		Pollutants:     []domain.Pollutant{domain.PM25, domain.O3},
		Horizon:        12,
	}
	f, _ := newTestForecaster()

	first, err := f.Forecast(context.Background(), req)
	require.NoError(t, err)
	second, err := f.Forecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 12)
}
