package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/features"
)

// MaxHorizon is the longest forecast, in hours
const MaxHorizon = 24

// Request describes one forecast run
type Request struct {
	Models         map[domain.Pollutant]Model
	Seed           features.Seed
	FeatureColumns []string
	Pollutants     []domain.Pollutant
	Horizon        int
	Weather        domain.WeatherForecast
}

// Forecaster runs recursive hour-by-hour predictions.
// It holds no per-request state and is safe for concurrent use.
type Forecaster struct {
	calc    *aqi.Calculator
	builder *features.Builder
	logger  logrus.FieldLogger
}

// NewForecaster creates a Forecaster
func NewForecaster(calc *aqi.Calculator, logger logrus.FieldLogger) *Forecaster {
	return &Forecaster{
		calc:    calc,
		builder: features.NewBuilder(),
		logger:  logger,
	}
}

// Forecast predicts req.Horizon hourly steps after the seed timestamp.
// Each step's predictions are fed back through the lag chains as the next step's lag-1h.
// A pollutant without a model, with a column-count mismatch, or whose regressor
// fails is left out of that step; the run itself continues. Lags of a pollutant
// without a model are not advanced and keep their seed values.
func (f *Forecaster) Forecast(ctx context.Context, req Request) ([]domain.PredictionStep, error) {
	if req.Horizon < 1 || req.Horizon > MaxHorizon {
		return nil, fmt.Errorf("%w: %d", ErrHorizonOutOfRange, req.Horizon)
	}
	if req.Seed.Timestamp.IsZero() {
		return nil, ErrNoSeedTime
	}

	state := make(features.State, len(req.FeatureColumns))
	for _, col := range req.FeatureColumns {
		v, ok := req.Seed.State[col]
		if !ok {
			v = math.NaN()
		}
		state[col] = v
	}
	lags := features.NewLagState(state, features.Quantities(modeled(req)))
	start := domain.ToUTC(req.Seed.Timestamp)

	steps := make([]domain.PredictionStep, 0, req.Horizon)
	for h := 0; h < req.Horizon; h++ {
		stepTime := start.Add(time.Duration(h+1) * time.Hour)

		var weather map[string]float64
		if w, ok := req.Weather.At(stepTime); ok {
			weather = w.Features()
		}
		vec := f.builder.Build(state, stepTime, weather)
		for _, name := range domain.WeatherFeatures() {
			if v, ok := vec.Get(name); ok {
				if _, tracked := state[name]; tracked {
					state[name] = v
				}
			}
		}

		values := make(map[domain.Pollutant]float64, len(req.Pollutants))
		for _, p := range req.Pollutants {
			if y, ok := f.predict(ctx, req, p, vec, stepTime); ok {
				values[p] = y
			}
		}

		step := domain.PredictionStep{Timestamp: stepTime, Pollutants: values}
		latest := make(map[string]float64, len(values)+1)
		for p, v := range values {
			latest[p.String()] = v
		}
		if idx, ok := f.calc.Aggregate(values, stepTime); ok {
			step.Index = &idx
			latest[domain.IndexQuantity] = float64(idx.Index)
		}
		steps = append(steps, step)

		lags.Advance(state, latest)
	}
	return steps, nil
}

func (f *Forecaster) predict(ctx context.Context, req Request, p domain.Pollutant, vec *features.Vector, at time.Time) (float64, bool) {
	log := f.logger.WithFields(logrus.Fields{"pollutant": p, "step": at})

	model, ok := req.Models[p]
	if !ok || model.Regressor == nil {
		log.Debug("No model loaded, skipping pollutant")
		return 0, false
	}
	cols := model.Columns
	if len(cols) == 0 {
		cols = req.FeatureColumns
	}
	x := vec.Array(cols)
	if want := model.Regressor.NumFeatures(); want != len(x) {
		log.WithFields(logrus.Fields{"got": len(x), "want": want}).Error("Feature count mismatch, skipping pollutant")
		return 0, false
	}

	y, err := model.Regressor.Predict(ctx, x)
	if err != nil {
		log.WithError(err).Warn("Prediction failed, skipping pollutant")
		return 0, false
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		log.Warn("Non-finite prediction, skipping pollutant")
		return 0, false
	}
	return math.Max(0, y), true
}

// modeled returns the requested pollutants that have a loaded model
func modeled(req Request) []domain.Pollutant {
	out := make([]domain.Pollutant, 0, len(req.Pollutants))
	for _, p := range req.Pollutants {
		if m, ok := req.Models[p]; ok && m.Regressor != nil {
			out = append(out, p)
		}
	}
	return out
}
