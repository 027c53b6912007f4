package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/i474232898/airwatch/internal/logger"
)

type AppConfig struct {
	WAQIToken   string
	WAQIBaseURL string

	OpenWeatherAPIKey string
	OpenAQAPIKey      string
	WeatherAPIKey     string
	GeocoderAPIKey    string

	// StationsFile is a JSON or YAML list of monitored stations.
	StationsFile string

	StoreDriver      string
	DBPath           string
	DatabaseURL      string
	StoreBusyTimeout time.Duration

	// Satellite reading cache. Disabled when RedisAddr is empty.
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	SatelliteCacheTTL time.Duration

	// FetchInterval controls how often every station is polled.
	FetchInterval   time.Duration
	FetchTimeout    time.Duration
	FetchWorkers    int
	UpstreamTimeout time.Duration

	ModelsDir string
	ModelTTL  time.Duration

	LogLevel string
	Port     string
}

// SatelliteEnabled reports whether any satellite source has credentials.
func (c *AppConfig) SatelliteEnabled() bool {
	return c.OpenWeatherAPIKey != "" || c.OpenAQAPIKey != ""
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Infof("No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.WAQIToken = os.Getenv("WAQI_TOKEN")
	cfg.WAQIBaseURL = getenvDefault("WAQI_BASE_URL", "https://api.waqi.info")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenAQAPIKey = os.Getenv("OPENAQ_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")

	cfg.StationsFile = getenvDefault("STATIONS_FILE", "stations.json")

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", "sqlite")
	cfg.DBPath = getenvDefault("DB_PATH", "air_quality.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)

	cfg.FetchWorkers = getenvInt("FETCH_WORKERS", 10)
	if cfg.FetchWorkers <= 0 {
		return nil, fmt.Errorf("invalid FETCH_WORKERS: %d", cfg.FetchWorkers)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FETCH_INTERVAL", "5m", &cfg.FetchInterval},
		{"FETCH_TIMEOUT", "15s", &cfg.FetchTimeout},
		{"UPSTREAM_TIMEOUT", "10s", &cfg.UpstreamTimeout},
		{"STORE_BUSY_TIMEOUT", "30s", &cfg.StoreBusyTimeout},
		{"SATELLITE_CACHE_TTL", "30m", &cfg.SatelliteCacheTTL},
		{"MODEL_TTL", "24h", &cfg.ModelTTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	cfg.ModelsDir = getenvDefault("MODELS_DIR", "models")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "INFO")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
