// Package config loads service configuration from .env, an optional config file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/smartcity/aqforecast/internal/aqi"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka"`
	OpenAQ      OpenAQConfig    `mapstructure:"openaq"`
	Weather     WeatherConfig   `mapstructure:"weather"`
	ML          MLConfig        `mapstructure:"ml"`
	Models      ModelsConfig    `mapstructure:"models"`
	Alignment   AlignmentConfig `mapstructure:"alignment"`
	Forecast    ForecastConfig  `mapstructure:"forecast"`
	AQI         AQIConfig       `mapstructure:"aqi"`
	Cache       CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins string        `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type OpenAQConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WeatherConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type MLConfig struct {
	URL string `mapstructure:"url"`
	// Remote switches regression to the ML service instead of local linear artifacts
	Remote bool `mapstructure:"remote"`
}

type ModelsConfig struct {
	Dir string `mapstructure:"dir"`
}

type AlignmentConfig struct {
	PrimaryTolerance  time.Duration `mapstructure:"primary_tolerance"`
	FallbackTolerance time.Duration `mapstructure:"fallback_tolerance"`
}

type ForecastConfig struct {
	DefaultHours int `mapstructure:"default_hours"`
}

type AQIConfig struct {
	// Tables is "training" or "epa2024"
	Tables string `mapstructure:"tables"`
}

type CacheConfig struct {
	ObservationTTL time.Duration `mapstructure:"observation_ttl"`
}

// Load reads .env (if present), then config.yaml (if present), then the environment.
// Environment keys use "_" for nesting: DATABASE_URL, REDIS_ADDR, OPENAQ_API_KEY.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy names kept from the earlier deployment
	for key, env := range map[string]string{
		"weather.api_key": "OPENWEATHER_API_KEY",
		"ml.url":          "ML_SERVICE_URL",
		"server.port":     "PORT",
		"environment":     "GO_ENV",
	} {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("config: failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.allow_origins", "*")

	v.SetDefault("database.url", "")
	v.SetDefault("database.connect_timeout", "10s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "aq.forecasts")

	v.SetDefault("openaq.base_url", "https://api.openaq.org/v3")
	v.SetDefault("openaq.api_key", "")
	v.SetDefault("openaq.timeout", "10s")

	v.SetDefault("weather.api_key", "")

	v.SetDefault("ml.url", "http://localhost:8000")
	v.SetDefault("ml.remote", false)

	v.SetDefault("models.dir", "models")

	v.SetDefault("alignment.primary_tolerance", "5m")
	v.SetDefault("alignment.fallback_tolerance", "60m")

	v.SetDefault("forecast.default_hours", 24)

	v.SetDefault("aqi.tables", "training")

	v.SetDefault("cache.observation_ttl", "5m")
}

// Validate checks values that would otherwise fail deep inside a request
func (c *Config) Validate() error {
	if c.Alignment.PrimaryTolerance < 0 || c.Alignment.FallbackTolerance < c.Alignment.PrimaryTolerance {
		return fmt.Errorf("config: alignment tolerances must satisfy 0 <= primary <= fallback, got %s/%s",
			c.Alignment.PrimaryTolerance, c.Alignment.FallbackTolerance)
	}
	if c.Forecast.DefaultHours < 1 || c.Forecast.DefaultHours > 24 {
		return fmt.Errorf("config: forecast.default_hours must be within 1..24, got %d", c.Forecast.DefaultHours)
	}
	if _, err := aqi.TablesByName(c.AQI.Tables); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
