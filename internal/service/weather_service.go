package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/domain"
)

const openWeatherBaseURL = "https://api.openweathermap.org/data/3.0"

// WeatherService handles hourly weather forecast fetching
type WeatherService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewWeatherService creates a new weather service
func NewWeatherService(apiKey string, logger logrus.FieldLogger) *WeatherService {
	return &WeatherService{
		apiKey:  apiKey,
		baseURL: openWeatherBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.WithField("component", "weather"),
	}
}

// WithBaseURL points the service at a different API host
func (s *WeatherService) WithBaseURL(u string) *WeatherService {
	s.baseURL = u
	return s
}

type oneCallPoint struct {
	Dt       int64   `json:"dt"`
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Pressure float64 `json:"pressure"`
}

// OneCallResponse is the subset of the One Call API response the forecaster consumes
type OneCallResponse struct {
	Current oneCallPoint   `json:"current"`
	Hourly  []oneCallPoint `json:"hourly"`
}

// GetHourlyForecast returns weather keyed by exact UTC hour, covering the current hour
// and up to hours hours after it. Without an API key, or when the provider is
// unreachable, an empty forecast is returned and the forecaster holds last known values.
func (s *WeatherService) GetHourlyForecast(ctx context.Context, lat, lon float64, hours int) (domain.WeatherForecast, error) {
	forecast := domain.WeatherForecast{}
	if s.apiKey == "" {
		return forecast, nil
	}

	url := fmt.Sprintf(
		"%s/onecall?lat=%f&lon=%f&exclude=minutely,daily,alerts&units=metric&appid=%s",
		s.baseURL, lat, lon, s.apiKey,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("weather: failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.WithError(err).Warn("Weather provider unreachable, continuing without forecast")
		return forecast, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.WithField("status", resp.StatusCode).Warn("Weather provider returned non-200, continuing without forecast")
		return forecast, nil
	}

	var oc OneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&oc); err != nil {
		return nil, fmt.Errorf("weather: failed to decode response: %w", err)
	}

	if oc.Current.Dt > 0 {
		forecast.Set(time.Unix(oc.Current.Dt, 0), oc.Current.point())
	}
	for i, h := range oc.Hourly {
		if i > hours {
			break
		}
		forecast.Set(time.Unix(h.Dt, 0), h.point())
	}
	return forecast, nil
}

func (p oneCallPoint) point() domain.WeatherPoint {
	return domain.WeatherPoint{
		Temperature: p.Temp,
		Humidity:    p.Humidity,
		Pressure:    p.Pressure,
	}
}
