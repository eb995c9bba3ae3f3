package http

import (
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes configures all HTTP routes
func SetupRoutes(app *fiber.App, handler *Handler) {
	// Health check
	app.Get("/health", handler.HealthCheck)

	// API v1 routes
	api := app.Group("/api/v1")
	{
		// Station endpoints
		locations := api.Group("/locations/:id")
		locations.Get("/observation", handler.GetObservation)
		locations.Get("/forecast", handler.GetForecast)
		locations.Get("/nowcast", handler.GetNowCast)

		// Stateless index calculators
		api.Post("/aqi", handler.ComputeIndex)
		api.Post("/nowcast", handler.ComputeNowCast)
	}
}
