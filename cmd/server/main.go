package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/alignment"
	"github.com/smartcity/aqforecast/internal/aqi"
	"github.com/smartcity/aqforecast/internal/cache"
	"github.com/smartcity/aqforecast/internal/config"
	"github.com/smartcity/aqforecast/internal/delivery/http"
	"github.com/smartcity/aqforecast/internal/forecast"
	"github.com/smartcity/aqforecast/internal/logging"
	"github.com/smartcity/aqforecast/internal/queue"
	"github.com/smartcity/aqforecast/internal/repository/postgres"
	"github.com/smartcity/aqforecast/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	logger := logging.New(cfg.Environment, cfg.LogLevel)
	log := logging.Component(logger, "server")

	// Database connection
	dataRepo, closeDB := connectRepository(cfg, log)
	defer closeDB()

	// Observation cache
	var obsCache service.ObservationCache
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, running without observation cache")
		} else {
			defer client.Close()
			obsCache = cache.NewObservationCache(client, cfg.Cache.ObservationTTL, logger)
			log.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")
		}
	}

	// Forecast event publisher
	var publisher service.ForecastPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		fp := queue.NewForecastPublisher(queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		defer fp.Close()
		publisher = fp
		log.WithField("topic", cfg.Kafka.Topic).Info("Publishing forecasts to Kafka")
	}

	// Index tables
	tables, err := aqi.TablesByName(cfg.AQI.Tables)
	if err != nil {
		log.WithError(err).Fatal("Invalid AQI tables")
	}
	calc := aqi.NewCalculator(tables, aqi.WithCap(cfg.AQI.Tables == "epa2024"))
	assembler := alignment.NewAssembler(calc, alignment.Tolerances{
		Primary:  cfg.Alignment.PrimaryTolerance,
		Fallback: cfg.Alignment.FallbackTolerance,
	})

	// Reading source
	var source service.ReadingSource
	if cfg.OpenAQ.APIKey != "" {
		source = service.NewOpenAQClient(cfg.OpenAQ.BaseURL, cfg.OpenAQ.APIKey, cfg.OpenAQ.Timeout, logger)
	} else {
		log.Warn("No OpenAQ API key, serving the mock station")
		source = service.NewMockReadingSource(nil)
	}

	// Models
	mlBridge := service.NewMLBridge(cfg.ML.URL)
	loader := forecast.LinearLoader(cfg.Models.Dir)
	if cfg.ML.Remote {
		loader = mlBridge.Loader()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := mlBridge.Health(ctx); err != nil {
			log.WithError(err).Warn("ML service not reachable yet")
		}
		cancel()
	}
	bundle, err := forecast.LoadBundle(cfg.Models.Dir, loader, logger)
	if err != nil {
		log.WithError(err).Warn("Model bundle unavailable, forecasts will return observations only")
		bundle = &forecast.Bundle{}
	} else {
		log.WithFields(logrus.Fields{
			"pollutants": len(bundle.Models),
			"features":   len(bundle.FeatureColumns),
			"snapshot":   bundle.HasSnapshot(),
		}).Info("Loaded model bundle")
	}

	// Dependency Injection: Services
	weatherSvc := service.NewWeatherService(cfg.Weather.APIKey, logger)
	airQualitySvc := service.NewAirQualityService(source, assembler, calc, dataRepo, obsCache, logger)
	forecastSvc := service.NewForecastService(
		airQualitySvc,
		weatherSvc,
		bundle,
		forecast.NewForecaster(calc, logger),
		calc,
		dataRepo,
		publisher,
		logger,
	)

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "AQ Forecast API v1.0",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	handler := http.NewHandler(airQualitySvc, forecastSvc, calc, dataRepo, cfg.Forecast.DefaultHours)
	http.SetupRoutes(app, handler)

	// Graceful shutdown
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.WithError(err).Fatal("Server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	airQualitySvc.WaitBackground()
	forecastSvc.WaitBackground()
	log.Info("Server exited gracefully")
}

// connectRepository opens PostgreSQL and applies the schema, falling back to the
// in-memory repository when no database is configured or reachable
func connectRepository(cfg *config.Config, log logrus.FieldLogger) (service.DataRepository, func()) {
	if cfg.Database.URL == "" {
		log.Warn("No database configured, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err == nil {
		err = pool.Ping(ctx)
		if err != nil {
			pool.Close()
		}
	}
	if err != nil {
		log.WithError(err).Warn("Could not connect to database, running with in-memory storage")
		return postgres.NewMockRepository(), func() {}
	}

	repo := postgres.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		log.WithError(err).Warn("Schema migration failed")
	}
	log.Info("Connected to PostgreSQL")
	return repo, pool.Close
}
