package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/features"
	"github.com/smartcity/aqforecast/internal/forecast"
)

// historyHours covers the longest lag plus the reference hour
const historyHours = 25

// WeatherProvider supplies hourly weather forecasts
type WeatherProvider interface {
	GetHourlyForecast(ctx context.Context, lat, lon float64, hours int) (domain.WeatherForecast, error)
}

// ForecastPublisher announces finished forecast runs
type ForecastPublisher interface {
	PublishForecast(ctx context.Context, r domain.ForecastResult) error
}

// ForecastService runs station forecasts end to end
type ForecastService struct {
	airQuality *AirQualityService
	weather    WeatherProvider
	bundle     *forecast.Bundle
	forecaster *forecast.Forecaster
	calc       *aqi.Calculator
	repo       DataRepository
	publisher  ForecastPublisher
	logger     logrus.FieldLogger
	now        func() time.Time

	wgBg sync.WaitGroup // tracks background persistence for graceful shutdown
}

// NewForecastService creates a forecast service; publisher may be nil
func NewForecastService(
	airQuality *AirQualityService,
	weather WeatherProvider,
	bundle *forecast.Bundle,
	forecaster *forecast.Forecaster,
	calc *aqi.Calculator,
	repo DataRepository,
	publisher ForecastPublisher,
	logger logrus.FieldLogger,
) *ForecastService {
	return &ForecastService{
		airQuality: airQuality,
		weather:    weather,
		bundle:     bundle,
		forecaster: forecaster,
		calc:       calc,
		repo:       repo,
		publisher:  publisher,
		logger:     logger.WithField("component", "forecast"),
		now:        time.Now,
	}
}

// WaitBackground blocks until all background saves and publishes complete.
// Call during graceful shutdown to avoid dropped writes.
func (s *ForecastService) WaitBackground() {
	s.wgBg.Wait()
}

// Forecast predicts hours hourly steps for a station.
// The seed comes from stored hourly history when available, otherwise from the training
// snapshot overlaid with the current observation. With neither, or with no models loaded,
// the result is a single observed step marked as fallback.
func (s *ForecastService) Forecast(ctx context.Context, locationID int64, hours int) (domain.ForecastResult, error) {
	if hours < 1 || hours > forecast.MaxHorizon {
		return domain.ForecastResult{}, fmt.Errorf("%w: %d", forecast.ErrHorizonOutOfRange, hours)
	}
	log := s.logger.WithField("location_id", locationID)

	var (
		current    domain.ObservationResponse
		obsErr     error
		history    []domain.HourlyAverage
		historyErr error
		wg         sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		current, obsErr = s.airQuality.CurrentObservation(ctx, locationID)
	}()
	go func() {
		defer wg.Done()
		end := s.now().UTC().Truncate(time.Hour).Add(time.Hour)
		history, historyErr = s.repo.GetHourlyAverages(ctx, locationID, end.Add(-(historyHours+1)*time.Hour), end)
	}()
	wg.Wait()

	if obsErr != nil {
		return domain.ForecastResult{}, obsErr
	}
	if historyErr != nil {
		log.WithError(historyErr).Warn("Hourly history unavailable")
	}

	obs := current.Observation
	obsHour := obs.Timestamp.Truncate(time.Hour)

	weather, err := s.weather.GetHourlyForecast(ctx, current.Location.Latitude, current.Location.Longitude, hours)
	if err != nil {
		log.WithError(err).Warn("Weather forecast unavailable, holding last known values")
		weather = nil
	}
	var currentWeather map[string]float64
	if w, ok := weather.At(obsHour); ok {
		currentWeather = w.Features()
	}

	result := domain.ForecastResult{
		RunID:       uuid.NewString(),
		LocationID:  locationID,
		Hours:       hours,
		Observation: &obs,
		GeneratedAt: s.now().UTC(),
	}

	seed, ok := s.seed(obs, history, currentWeather)
	if !ok || len(s.bundle.Models) == 0 {
		log.Info("No forecast seed or models, returning observation only")
		result.Fallback = true
		result.Steps = []domain.PredictionStep{{
			Timestamp:  obs.Timestamp,
			Pollutants: obs.Values,
			Index:      obs.Index,
			Observed:   true,
		}}
	} else {
		steps, err := s.forecaster.Forecast(ctx, forecast.Request{
			Models:         s.bundle.Models,
			Seed:           seed,
			FeatureColumns: s.bundle.FeatureColumns,
			Pollutants:     s.bundle.Pollutants,
			Horizon:        hours,
			Weather:        weather,
		})
		if err != nil {
			return domain.ForecastResult{}, fmt.Errorf("service: forecast failed: %w", err)
		}
		result.Steps = steps
	}
	result.MaxIndex = maxIndex(result.Steps)

	s.wgBg.Add(1)
	go func() {
		defer s.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.SaveForecast(bgCtx, result); err != nil {
			log.WithError(err).Warn("Failed to save forecast")
		}
		if s.publisher != nil {
			if err := s.publisher.PublishForecast(bgCtx, result); err != nil {
				log.WithError(err).Warn("Failed to publish forecast")
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"run_id":   result.RunID,
		"steps":    len(result.Steps),
		"fallback": result.Fallback,
	}).Info("Forecast generated")
	return result, nil
}

// seed prefers stored history and falls back to the training snapshot
func (s *ForecastService) seed(obs domain.WideObservation, history []domain.HourlyAverage, weather map[string]float64) (features.Seed, bool) {
	if state, ok := s.historyState(obs, history); ok {
		for name, v := range weather {
			state[name] = v
		}
		return features.Seed{Timestamp: obs.Timestamp.Truncate(time.Hour), State: state}, true
	}
	if s.bundle.HasSnapshot() {
		return features.Overlay(s.bundle.Snapshot, obs, weather), true
	}
	return features.Seed{}, false
}

// historyState builds lag and rolling features from stored hourly averages with the
// current observation as the newest hour. ok is false when no pollutant has a usable lag.
func (s *ForecastService) historyState(obs domain.WideObservation, history []domain.HourlyAverage) (features.State, bool) {
	if len(history) == 0 {
		return nil, false
	}
	obsHour := obs.Timestamp.Truncate(time.Hour)
	series := features.HourlySeries(history, obsHour, historyHours)

	lagged := s.bundle.LaggedPollutants()
	hist := make(map[string][]float64, len(lagged)+1)
	last := historyHours - 1
	for _, p := range lagged {
		sr, ok := series[p]
		if !ok {
			sr = nanSeries(historyHours)
		}
		if v, present := obs.Value(p); present {
			sr[last] = v
		}
		hist[p.String()] = sr
	}

	index := nanSeries(historyHours)
	for i := range index {
		values := make(map[domain.Pollutant]float64, len(hist))
		for p, sr := range series {
			if !math.IsNaN(sr[i]) {
				values[p] = sr[i]
			}
		}
		if idx, ok := s.calc.Aggregate(values, obsHour); ok {
			index[i] = float64(idx.Index)
		}
	}
	if obs.Index != nil {
		index[last] = float64(obs.Index.Index)
	}
	hist[domain.IndexQuantity] = index

	state := features.StateFromHistory(hist)
	for _, p := range lagged {
		if v, ok := state[features.LagName(p.String(), 1)]; ok && !math.IsNaN(v) {
			return state, true
		}
	}
	return nil, false
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func maxIndex(steps []domain.PredictionStep) *int {
	var top *int
	for _, st := range steps {
		if st.Index == nil {
			continue
		}
		if top == nil || st.Index.Index > *top {
			v := st.Index.Index
			top = &v
		}
	}
	return top
}
