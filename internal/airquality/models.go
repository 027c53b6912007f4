package airquality

import (
	"time"
)

// TimestampLayout is the canonical text form of a measurement timestamp.
// Timestamps are naive local wall-clock values without a zone suffix.
const TimestampLayout = "2006-01-02T15:04:05"

// Station is a fixed sensor station. Stations are supplied by configuration
// and never mutated.
type Station struct {
	UID  int     `json:"uid" yaml:"uid" mapstructure:"uid" validate:"required,gt=0"`
	Name string  `json:"name" yaml:"name" mapstructure:"name"`
	Lat  float64 `json:"lat" yaml:"lat" mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `json:"lng" yaml:"lng" mapstructure:"lng" validate:"gte=-180,lte=180"`
}

// Measurement is a single accepted reading for a station.
// (StationUID, Timestamp) is unique in every store.
type Measurement struct {
	StationUID int       `json:"station_uid"`
	AQI        int       `json:"aqi"`
	PM25       float64   `json:"pm25"`
	Timestamp  time.Time `json:"timestamp"`
}

// AlertType classifies an alert record.
type AlertType string

const (
	AlertSpike AlertType = "SPIKE"
)

// Alert is an append-only record produced by the spike detector.
// CreatedAt is assigned by the store.
type Alert struct {
	ID         int64     `json:"id"`
	StationUID int       `json:"station_uid"`
	Type       AlertType `json:"alert_type"`
	Message    string    `json:"message"`
	AQIValue   int       `json:"aqi_value"`
	CreatedAt  time.Time `json:"created_at"`
}

// HourlyAverage is the network-wide mean AQI for one hour of the day.
type HourlyAverage struct {
	Hour    int     `json:"hour"`
	AvgAQI  float64 `json:"avg_aqi"`
	Samples int     `json:"samples"`
}

// SatelliteReading is a model/satellite-derived estimate for a coordinate.
type SatelliteReading struct {
	AQI          int     `json:"aqi"`
	Source       string  `json:"source"`
	PM25         float64 `json:"pm25"`
	PM10         float64 `json:"pm10,omitempty"`
	NO2          float64 `json:"no2,omitempty"`
	O3           float64 `json:"o3,omitempty"`
	OWMIndex     int     `json:"owm_aqi_index,omitempty"`
	OWMLabel     string  `json:"owm_aqi_label,omitempty"`
	LocationName string  `json:"location_name,omitempty"`
	DataType     string  `json:"data_type,omitempty"`
}

// CurrentWeather is the normalized current-conditions view for a coordinate.
type CurrentWeather struct {
	TemperatureC float64   `json:"temp"`
	HumidityPct  float64   `json:"humidity"`
	FeelsLikeC   float64   `json:"feels_like"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	WindSpeedMS  float64   `json:"wind_speed"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
}

// NaiveLocal keeps the wall clock of t and drops its zone, mapping it onto
// the local location.
func NaiveLocal(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}

// FormatTimestamp renders a measurement timestamp in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a stored measurement timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.Local)
}

// Status tells callers whether a derived result is usable.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"
	StatusNoData      Status = "no_data"
	StatusUnavailable Status = "unavailable"
)
