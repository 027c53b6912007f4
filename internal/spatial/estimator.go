package spatial

import (
	"context"
	"errors"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/metrics"
)

// Estimator answers air-quality queries for arbitrary coordinates from the
// latest station readings, optionally backed by a satellite source.
type Estimator struct {
	store     airquality.Store
	stations  []airquality.Station
	satellite airquality.SatelliteSource
	places    airquality.PlaceResolver

	power           float64
	maxDistKm       float64
	upstreamTimeout time.Duration
}

type Option func(*Estimator)

func WithSatellite(src airquality.SatelliteSource) Option {
	return func(e *Estimator) { e.satellite = src }
}

func WithPlaceResolver(r airquality.PlaceResolver) Option {
	return func(e *Estimator) { e.places = r }
}

// WithPower sets the IDW distance exponent (default 2).
func WithPower(p float64) Option {
	return func(e *Estimator) { e.power = p }
}

// WithMaxDistance sets the IDW contribution radius in km (default 500).
func WithMaxDistance(km float64) Option {
	return func(e *Estimator) { e.maxDistKm = km }
}

// WithUpstreamTimeout bounds satellite and geocoding lookups (default 10s).
func WithUpstreamTimeout(d time.Duration) Option {
	return func(e *Estimator) { e.upstreamTimeout = d }
}

func New(store airquality.Store, stations []airquality.Station, opts ...Option) *Estimator {
	e := &Estimator{
		store:           store,
		stations:        stations,
		power:           2.0,
		maxDistKm:       500,
		upstreamTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot joins configured stations with their latest reading, in station
// order. Stations without a reading are skipped.
func (e *Estimator) Snapshot(ctx context.Context) ([]StationReading, error) {
	latest, err := e.store.LatestPerStation(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StationReading, 0, len(latest))
	for _, st := range e.stations {
		m, ok := latest[st.UID]
		if !ok {
			continue
		}
		out = append(out, StationReading{
			UID: st.UID, Name: st.Name, Lat: st.Lat, Lng: st.Lng,
			AQI: m.AQI, Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// Estimate never returns an error: faults are reported through Status.
func (e *Estimator) Estimate(ctx context.Context, lat, lng float64) Estimate {
	readings, err := e.Snapshot(ctx)
	if err != nil {
		logger.Errorf("spatial: latest snapshot failed: %v", err)
		metrics.Estimations.WithLabelValues(string(airquality.StatusUnavailable)).Inc()
		return Estimate{Status: airquality.StatusUnavailable, Lat: lat, Lng: lng}
	}

	est, ok := Interpolate(readings, lat, lng, e.power, e.maxDistKm)
	if !ok {
		est = e.satelliteOnly(ctx, lat, lng)
	} else if est.Confidence.Level == LevelVeryLow && e.satellite != nil {
		if sat, err := e.fetchSatellite(ctx, lat, lng); err == nil {
			est.Satellite = &sat
			est.HybridSource = true
		}
	}

	if est.Status != airquality.StatusNoData && e.places != nil {
		est.Place = e.placeName(ctx, lat, lng)
	}

	source := est.Source
	if source == "" {
		source = string(est.Status)
	}
	metrics.Estimations.WithLabelValues(source).Inc()
	return est
}

func (e *Estimator) satelliteOnly(ctx context.Context, lat, lng float64) Estimate {
	est := Estimate{Status: airquality.StatusNoData, Lat: lat, Lng: lng}
	if e.satellite == nil {
		return est
	}
	sat, err := e.fetchSatellite(ctx, lat, lng)
	if err != nil {
		return est
	}
	return Estimate{
		Status:     airquality.StatusDegraded,
		Lat:        lat,
		Lng:        lng,
		AQI:        sat.AQI,
		Confidence: satelliteConfidence,
		Source:     SourceSatellite,
		Satellite:  &sat,
	}
}

func (e *Estimator) fetchSatellite(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, error) {
	ctx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
	defer cancel()

	sat, err := e.satellite.FetchSatellite(ctx, lat, lng)
	if err != nil && !errors.Is(err, airquality.ErrNotConfigured) {
		logger.Warnf("spatial: satellite lookup failed: %v", err)
	}
	return sat, err
}

func (e *Estimator) placeName(ctx context.Context, lat, lng float64) string {
	ctx, cancel := context.WithTimeout(ctx, e.upstreamTimeout)
	defer cancel()

	name, err := e.places.PlaceName(ctx, lat, lng)
	if err != nil {
		logger.Debugf("spatial: place lookup failed: %v", err)
		return ""
	}
	return name
}
