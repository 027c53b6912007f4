package main

import (
	"context"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/airquality/providers"
	httpapi "github.com/i474232898/airwatch/internal/api/http"
	"github.com/i474232898/airwatch/internal/config"
	"github.com/i474232898/airwatch/internal/forecast"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/modelcache"
	"github.com/i474232898/airwatch/internal/scheduler"
	"github.com/i474232898/airwatch/internal/spatial"
	"github.com/i474232898/airwatch/internal/spike"
	"github.com/i474232898/airwatch/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	stations, err := config.LoadStations(cfg.StationsFile)
	if err != nil {
		logger.Fatalf("failed to load stations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer

	db, err := store.Open(ctx, store.Options{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.DBPath,
		PostgresURL: cfg.DatabaseURL,
		BusyTimeout: cfg.StoreBusyTimeout,
	})
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	closers = append(closers, db)

	// Shared HTTP client for outbound provider calls. Per-call deadlines come
	// from the providers' own timeouts.
	httpClient := &http.Client{}

	waqi := providers.NewWAQIProvider(httpClient, cfg.WAQIBaseURL, cfg.WAQIToken, cfg.FetchTimeout)
	owm := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, cfg.UpstreamTimeout)
	openaq := providers.NewOpenAQProvider(httpClient, cfg.OpenAQAPIKey, cfg.UpstreamTimeout)

	// Open-Meteo needs no key and answers when neither keyed source is set up.
	weather := providers.NewWeatherChain(
		owm,
		providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, cfg.UpstreamTimeout),
		providers.NewOpenMeteoProvider(httpClient, cfg.UpstreamTimeout),
	)

	var satellite airquality.SatelliteSource
	if cfg.SatelliteEnabled() {
		satellite = providers.NewSatelliteChain(owm, openaq)
		if cfg.RedisAddr != "" {
			cache, err := providers.NewRedisSatelliteCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				logger.Warnf("satellite cache disabled: %v", err)
			} else {
				closers = append(closers, cache)
				satellite = providers.NewCachedSatellite(satellite, cache, cfg.SatelliteCacheTTL)
			}
		}
	}

	estimatorOpts := []spatial.Option{spatial.WithUpstreamTimeout(cfg.UpstreamTimeout)}
	if satellite != nil {
		estimatorOpts = append(estimatorOpts, spatial.WithSatellite(satellite))
	}
	if cfg.GeocoderAPIKey != "" {
		estimatorOpts = append(estimatorOpts, spatial.WithPlaceResolver(providers.NewGeocoderPlaceResolver(cfg.GeocoderAPIKey)))
	}
	estimator := spatial.New(db, stations, estimatorOpts...)

	models, err := modelcache.NewJSONPersister[*forecast.GBRT](cfg.ModelsDir)
	if err != nil {
		logger.Fatalf("failed to prepare models dir: %v", err)
	}
	engine := forecast.NewEngine(db, forecast.WithModelTTL(cfg.ModelTTL), forecast.WithPersister(models))

	// Scheduler that periodically polls every station and stores readings.
	sched := scheduler.New(stations, waqi, db, spike.New(db),
		scheduler.WithInterval(cfg.FetchInterval),
		scheduler.WithFetchTimeout(cfg.FetchTimeout),
		scheduler.WithWorkers(cfg.FetchWorkers),
	)
	if err := sched.Start(ctx); err != nil {
		logger.Fatalf("failed to start scheduler: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               "airwatch",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		last := sched.LastReport()
		return c.JSON(fiber.Map{
			"status":     "ok",
			"service":    "airwatch",
			"stations":   len(stations),
			"satellite":  satellite != nil,
			"last_cycle": last,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Stations:   stations,
		Store:      db,
		Estimator:  estimator,
		Forecaster: engine,
		Weather:    weather,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Errorf("fiber server stopped: %v", err)
		}
	}()
	logger.Infof("airwatch listening on :%s with %d stations (%s store)", cfg.Port, len(stations), cfg.StoreDriver)

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var result *multierror.Error
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	sched.Stop()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Errorf("error during shutdown: %v", err)
	}
}
