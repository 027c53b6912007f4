package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StationsPolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airwatch_stations_polled_total",
			Help: "Total number of station fetch attempts",
		},
	)

	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_station_fetch_failures_total",
			Help: "Station fetches that produced no reading, by reason",
		},
		[]string{"reason"},
	)

	ReadingsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airwatch_readings_inserted_total",
			Help: "Readings newly written to the measurement store",
		},
	)

	ReadingsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airwatch_readings_duplicate_total",
			Help: "Accepted readings ignored because they were already stored",
		},
	)

	SpikeAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_spike_alerts_total",
			Help: "Spike alerts raised per station",
		},
		[]string{"station_uid"},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airwatch_alerts_dropped_total",
			Help: "Spike checks abandoned after storage errors",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "airwatch_ingestion_cycle_seconds",
			Help:    "Duration of a full ingestion cycle",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 15, 30, 60},
		},
	)

	Estimations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_estimations_total",
			Help: "Spatial estimations by result source",
		},
		[]string{"source"},
	)

	Forecasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_forecasts_total",
			Help: "Forecasts produced by mode",
		},
		[]string{"mode"},
	)

	ModelTrainings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airwatch_model_trainings_total",
			Help: "Forecast models trained",
		},
	)

	ModelCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_model_cache_hits_total",
			Help: "Model cache lookups served without training, by tier",
		},
		[]string{"tier"},
	)

	SatelliteCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airwatch_satellite_cache_total",
			Help: "Satellite cache lookups by result",
		},
		[]string{"result"},
	)
)
