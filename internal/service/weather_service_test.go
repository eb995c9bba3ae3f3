package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherService_HourlyForecast(t *testing.T) {
	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onecall", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		fmt.Fprintf(w, `{
			"current": {"dt": %d, "temp": 21.5, "humidity": 60, "pressure": 1012},
			"hourly": [
				{"dt": %d, "temp": 21.0, "humidity": 61, "pressure": 1012},
				{"dt": %d, "temp": 22.0, "humidity": 58, "pressure": 1011},
				{"dt": %d, "temp": 23.0, "humidity": 55, "pressure": 1010}
			]
		}`, base.Add(5*time.Minute).Unix(), base.Unix(), base.Add(time.Hour).Unix(), base.Add(2*time.Hour).Unix())
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	svc := NewWeatherService("key", logger).WithBaseURL(srv.URL)

	fc, err := svc.GetHourlyForecast(context.Background(), 25.05, 121.53, 1)
	require.NoError(t, err)
	assert.Len(t, fc, 2)

	w, ok := fc.At(base)
	require.True(t, ok)
	assert.Equal(t, 21.0, w.Temperature)

	w, ok = fc.At(base.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, 58.0, w.Humidity)

	_, ok = fc.At(base.Add(2 * time.Hour))
	assert.False(t, ok)
}

func TestWeatherService_NoAPIKey(t *testing.T) {
	logger, _ := test.NewNullLogger()
	svc := NewWeatherService("", logger).WithBaseURL("http://127.0.0.1:1")

	fc, err := svc.GetHourlyForecast(context.Background(), 0, 0, 24)
	require.NoError(t, err)
	assert.Empty(t, fc)
}

func TestWeatherService_ProviderErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	svc := NewWeatherService("key", logger).WithBaseURL(srv.URL)

	fc, err := svc.GetHourlyForecast(context.Background(), 0, 0, 24)
	require.NoError(t, err)
	assert.Empty(t, fc)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, 429, hook.LastEntry().Data["status"])
}

func TestWeatherService_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	svc := NewWeatherService("key", logger).WithBaseURL(srv.URL)

	_, err := svc.GetHourlyForecast(context.Background(), 0, 0, 24)
	assert.Error(t, err)
}
