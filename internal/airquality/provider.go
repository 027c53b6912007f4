package airquality

import (
	"context"
	"time"
)

// Store is the contract every measurement store backend satisfies.
type Store interface {
	// InsertIfAbsent stores m unless a row with the same station and
	// timestamp exists. Duplicates are ignored, never overwritten.
	InsertIfAbsent(ctx context.Context, m Measurement) (bool, error)
	LatestPerStation(ctx context.Context) (map[int]Measurement, error)
	// History returns up to limit measurements, most recent first.
	History(ctx context.Context, uid int, limit int) ([]Measurement, error)
	InsertAlert(ctx context.Context, a Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	HourlyTrend(ctx context.Context, since time.Time) ([]HourlyAverage, error)
	Close() error
}

// StationSource fetches the current reading of a single station.
type StationSource interface {
	Name() string
	FetchReading(ctx context.Context, st Station) (Measurement, error)
}

// SatelliteSource abstracts a satellite/model-derived pollution source
// (e.g. OpenWeatherMap air pollution, OpenAQ).
type SatelliteSource interface {
	Name() string
	FetchSatellite(ctx context.Context, lat, lng float64) (SatelliteReading, error)
}

// WeatherSource provides current weather for a coordinate.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, lat, lng float64) (CurrentWeather, error)
}

// PlaceResolver turns a coordinate into a human-readable place label.
type PlaceResolver interface {
	PlaceName(ctx context.Context, lat, lng float64) (string, error)
}
