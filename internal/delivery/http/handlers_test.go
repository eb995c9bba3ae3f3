package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/forecast"
	"github.com/smartcity/aqforecast/internal/service"
)

type fakeAirQuality struct {
	resp      domain.ObservationResponse
	nowcast   domain.NowCastResult
	err       error
	requested int64
}

func (f *fakeAirQuality) CurrentObservation(ctx context.Context, locationID int64) (domain.ObservationResponse, error) {
	f.requested = locationID
	return f.resp, f.err
}

func (f *fakeAirQuality) NowCast(ctx context.Context, locationID int64) (domain.NowCastResult, error) {
	f.requested = locationID
	return f.nowcast, f.err
}

type fakeForecasts struct {
	hours int
	err   error
}

func (f *fakeForecasts) Forecast(ctx context.Context, locationID int64, hours int) (domain.ForecastResult, error) {
	f.hours = hours
	if f.err != nil {
		return domain.ForecastResult{}, f.err
	}
	return domain.ForecastResult{LocationID: locationID, Hours: hours}, nil
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) Health(ctx context.Context) error {
	return f.err
}

func setupApp(aq AirQualityService, fc ForecastService, health HealthChecker) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, NewHandler(aq, fc, aqi.NewDefaultCalculator(), health, 24))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestHealthCheck(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})
	code, body := doRequest(t, app, "GET", "/health", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])

	app = setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{err: errors.New("down")})
	_, body = doRequest(t, app, "GET", "/health", "")
	assert.Equal(t, "unavailable", body["database"])
}

func TestGetObservation(t *testing.T) {
	aq := &fakeAirQuality{resp: domain.ObservationResponse{
		Location: domain.Location{ID: 42, Name: "Central"},
		Observation: domain.WideObservation{
			Timestamp: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC),
			Values:    map[domain.Pollutant]float64{domain.PM25: 6},
		},
		Success: true,
	}}
	app := setupApp(aq, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "GET", "/api/v1/locations/42/observation", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, int64(42), aq.requested)
	obs := body["observation"].(map[string]any)
	assert.Equal(t, map[string]any{"pm25": 6.0}, obs["values"])
}

func TestGetObservation_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no observation", service.ErrNoObservation, 404},
		{"unknown location", service.ErrLocationNotFound, 404},
		{"upstream failure", errors.New("connection reset"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(&fakeAirQuality{err: tt.err}, &fakeForecasts{}, fakeHealth{})
			code, body := doRequest(t, app, "GET", "/api/v1/locations/7/observation", "")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestGetObservation_InvalidID(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})
	code, body := doRequest(t, app, "GET", "/api/v1/locations/abc/observation", "")
	assert.Equal(t, 400, code)
	assert.Equal(t, "Invalid location id", body["message"])
}

func TestGetForecast_ClampsHours(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 24},
		{"?hours=6", 6},
		{"?hours=48", 24},
		{"?hours=0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			fc := &fakeForecasts{}
			app := setupApp(&fakeAirQuality{}, fc, fakeHealth{})
			code, body := doRequest(t, app, "GET", "/api/v1/locations/42/forecast"+tt.query, "")
			assert.Equal(t, 200, code)
			assert.Equal(t, tt.want, fc.hours)
			assert.Equal(t, true, body["success"])
		})
	}
}

func TestGetForecast_HorizonError(t *testing.T) {
	fc := &fakeForecasts{err: forecast.ErrHorizonOutOfRange}
	app := setupApp(&fakeAirQuality{}, fc, fakeHealth{})
	code, _ := doRequest(t, app, "GET", "/api/v1/locations/42/forecast", "")
	assert.Equal(t, 400, code)
}

func TestGetNowCast(t *testing.T) {
	aq := &fakeAirQuality{nowcast: domain.NowCastResult{
		LocationID: 42,
		Values:     map[domain.Pollutant]float64{domain.PM25: 6},
		Index:      &domain.IndexResult{Index: 25, DominantPollutant: domain.PM25},
	}}
	app := setupApp(aq, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "GET", "/api/v1/locations/42/nowcast", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "Good", body["category"])
}

func TestComputeIndex(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "POST", "/api/v1/aqi", `{"values":{"pm25":6.0,"pm10":80}}`)
	require.Equal(t, 200, code)
	idx := body["aqi"].(map[string]any)
	assert.Equal(t, 63.0, idx["aqi"])
	assert.Equal(t, "pm10", idx["dominant_pollutant"])
	assert.Equal(t, "Moderate", body["category"])
	assert.Equal(t, map[string]any{"pm25": 25.0, "pm10": 63.0}, body["sub_indices"])
}

func TestComputeIndex_NoValidValues(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "POST", "/api/v1/aqi", `{"values":{"pm25":-1}}`)
	require.Equal(t, 200, code)
	assert.Nil(t, body["aqi"])
}

func TestComputeIndex_UnknownPollutant(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "POST", "/api/v1/aqi", `{"values":{"radon":3}}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, "Invalid request body", body["message"])
}

func TestComputeNowCast(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})

	code, body := doRequest(t, app, "POST", "/api/v1/nowcast", `{"pollutant":"pm25","hourly":[null,6,6]}`)
	require.Equal(t, 200, code)
	assert.Equal(t, "pm25", body["pollutant"])
	assert.Equal(t, 6.0, body["nowcast"])
	assert.Equal(t, 25.0, body["aqi"])
	assert.Equal(t, "Good", body["category"])
}

func TestComputeNowCast_NoValidHours(t *testing.T) {
	app := setupApp(&fakeAirQuality{}, &fakeForecasts{}, fakeHealth{})

	code, _ := doRequest(t, app, "POST", "/api/v1/nowcast", `{"pollutant":"pm25","hourly":[null,null]}`)
	assert.Equal(t, 422, code)
}
