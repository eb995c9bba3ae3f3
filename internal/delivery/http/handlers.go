package http

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/domain"
	"github.com/smartcity/aqforecast/internal/forecast"
	"github.com/smartcity/aqforecast/internal/service"
	"github.com/smartcity/aqforecast/pkg/utils"
)

// AirQualityService serves current observations and NowCast indices
type AirQualityService interface {
	CurrentObservation(ctx context.Context, locationID int64) (domain.ObservationResponse, error)
	NowCast(ctx context.Context, locationID int64) (domain.NowCastResult, error)
}

// ForecastService serves station forecasts
type ForecastService interface {
	Forecast(ctx context.Context, locationID int64, hours int) (domain.ForecastResult, error)
}

// HealthChecker reports backing-store health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler contains all HTTP handlers
type Handler struct {
	airQuality   AirQualityService
	forecasts    ForecastService
	calc         *aqi.Calculator
	health       HealthChecker
	defaultHours int
}

// NewHandler creates a new handler
func NewHandler(airQuality AirQualityService, forecasts ForecastService, calc *aqi.Calculator, health HealthChecker, defaultHours int) *Handler {
	return &Handler{
		airQuality:   airQuality,
		forecasts:    forecasts,
		calc:         calc,
		health:       health,
		defaultHours: defaultHours,
	}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	database := "ok"
	if err := h.health.Health(ctx); err != nil {
		database = "unavailable"
	}

	return c.JSON(fiber.Map{
		"status":   "ok",
		"service":  "aqforecast",
		"version":  "1.0.0",
		"database": database,
	})
}

// GetObservation returns the reconciled current observation for a station
func (h *Handler) GetObservation(c *fiber.Ctx) error {
	id, err := locationID(c)
	if err != nil {
		return err
	}

	resp, err := h.airQuality.CurrentObservation(c.Context(), id)
	if err != nil {
		return mapError(err, "Failed to fetch observation")
	}
	return c.JSON(resp)
}

// GetForecast returns an hourly forecast; hours is clamped to 1..24
func (h *Handler) GetForecast(c *fiber.Ctx) error {
	id, err := locationID(c)
	if err != nil {
		return err
	}

	hours := utils.ClampInt(c.QueryInt("hours", h.defaultHours), 1, forecast.MaxHorizon)

	result, err := h.forecasts.Forecast(c.Context(), id, hours)
	if err != nil {
		return mapError(err, "Failed to generate forecast")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// GetNowCast returns the NowCast index from stored hourly history
func (h *Handler) GetNowCast(c *fiber.Ctx) error {
	id, err := locationID(c)
	if err != nil {
		return err
	}

	result, err := h.airQuality.NowCast(c.Context(), id)
	if err != nil {
		return mapError(err, "Failed to compute NowCast")
	}
	out := fiber.Map{
		"success": true,
		"data":    result,
	}
	if result.Index != nil {
		out["category"] = aqi.Category(result.Index.Index)
	}
	return c.JSON(out)
}

// IndexRequest is the body of POST /aqi
type IndexRequest struct {
	Values map[domain.Pollutant]float64 `json:"values"`
}

// ComputeIndex aggregates submitted concentrations into an index
func (h *Handler) ComputeIndex(c *fiber.Ctx) error {
	var req IndexRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	subIndices := make(map[domain.Pollutant]float64, len(req.Values))
	for p, v := range req.Values {
		if idx, ok := h.calc.SubIndex(p, v); ok {
			subIndices[p] = idx
		}
	}

	idx, ok := h.calc.Aggregate(req.Values, time.Now().UTC())
	if !ok {
		return c.JSON(fiber.Map{
			"success":     true,
			"aqi":         nil,
			"sub_indices": subIndices,
		})
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"aqi":         idx,
		"category":    aqi.Category(idx.Index),
		"sub_indices": subIndices,
	})
}

// NowCastRequest is the body of POST /nowcast; null hours are missing
type NowCastRequest struct {
	Pollutant domain.Pollutant `json:"pollutant"`
	Hourly    []*float64       `json:"hourly"`
}

// ComputeNowCast smooths a submitted hourly series, oldest first
func (h *Handler) ComputeNowCast(c *fiber.Ctx) error {
	var req NowCastRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	hourly := make([]float64, len(req.Hourly))
	for i, v := range req.Hourly {
		hourly[i] = math.NaN()
		if v != nil {
			hourly[i] = *v
		}
	}

	value, ok := aqi.NowCast(hourly)
	if !ok {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "No valid hourly values")
	}

	out := fiber.Map{
		"success":   true,
		"pollutant": req.Pollutant,
		"nowcast":   value,
	}
	if idx, ok := h.calc.SubIndex(req.Pollutant, value); ok {
		out["aqi"] = idx
		out["category"] = aqi.Category(int(idx))
	}
	return c.JSON(out)
}

func locationID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid location id")
	}
	return int64(id), nil
}

func mapError(err error, message string) error {
	switch {
	case errors.Is(err, service.ErrNoObservation):
		return fiber.NewError(fiber.StatusNotFound, "No observation available")
	case errors.Is(err, service.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Location not found")
	case errors.Is(err, forecast.ErrHorizonOutOfRange):
		return fiber.NewError(fiber.StatusBadRequest, "Forecast horizon must be within 1..24 hours")
	}
	return fiber.NewError(fiber.StatusInternalServerError, message)
}

// ErrorHandler renders errors as {"error": true, "message": ...}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
