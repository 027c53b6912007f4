package spatial

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/store"
)

// kmPerDegLat is the haversine length of one degree along a meridian.
const kmPerDegLat = airquality.EarthRadiusKm * 3.141592653589793 / 180

func TestConfidenceTiers(t *testing.T) {
	assert.Equal(t, LevelHigh, ConfidenceFor(0).Level)
	assert.Equal(t, LevelHigh, ConfidenceFor(29.9).Level)
	assert.Equal(t, LevelHigh, ConfidenceFor(30).Level)
	assert.Equal(t, LevelMedium, ConfidenceFor(30.1).Level)
	assert.Equal(t, 70, ConfidenceFor(100).Percent)
	assert.Equal(t, LevelLow, ConfidenceFor(150).Level)
	assert.Equal(t, "#f97316", ConfidenceFor(200).Color)
	assert.Equal(t, LevelVeryLow, ConfidenceFor(200.01).Level)
	assert.Equal(t, 20, ConfidenceFor(5000).Percent)
}

func TestInterpolateExactStation(t *testing.T) {
	readings := []StationReading{
		{UID: 1, Lat: 10, Lng: 10, AQI: 42},
		{UID: 2, Lat: 10.5, Lng: 10, AQI: 300},
	}
	est, ok := Interpolate(readings, 10.001, 10, 2, 500)
	require.True(t, ok)
	assert.Equal(t, 42, est.AQI)
	assert.Equal(t, SourceGroundStation, est.Source)
	assert.False(t, est.Interpolated)
	assert.Equal(t, 1, est.NearestStation.UID)
	assert.Equal(t, LevelHigh, est.Confidence.Level)
	assert.Equal(t, airquality.StatusOK, est.Status)
}

func TestInterpolateEquidistant(t *testing.T) {
	readings := []StationReading{
		{UID: 1, Lat: 1, Lng: 0, AQI: 80},
		{UID: 2, Lat: -1, Lng: 0, AQI: 120},
	}
	est, ok := Interpolate(readings, 0, 0, 2, 500)
	require.True(t, ok)
	assert.Equal(t, 100, est.AQI)
	assert.Equal(t, SourceIDW, est.Source)
	assert.True(t, est.Interpolated)
	assert.InDelta(t, 111.2, est.DistanceKm, 0.05)
	assert.Equal(t, LevelLow, est.Confidence.Level)

	// Half a degree away (55.6 km) falls in the medium tier.
	readings[0].Lat, readings[1].Lat = 0.5, -0.5
	est, ok = Interpolate(readings, 0, 0, 2, 500)
	require.True(t, ok)
	assert.Equal(t, 100, est.AQI)
	assert.InDelta(t, 55.6, est.DistanceKm, 0.05)
	assert.Equal(t, LevelMedium, est.Confidence.Level)
}

func TestInterpolateWeightsCloserStations(t *testing.T) {
	readings := []StationReading{
		{UID: 1, Lat: 0.1, Lng: 0, AQI: 50},
		{UID: 2, Lat: -0.3, Lng: 0, AQI: 150},
	}
	est, ok := Interpolate(readings, 0, 0, 2, 500)
	require.True(t, ok)
	// Weights 1/d² at distances d and 3d: (50*9 + 150*1) / 10 = 60.
	assert.Equal(t, 60, est.AQI)
}

func TestInterpolateIgnoresFarStations(t *testing.T) {
	readings := []StationReading{
		{UID: 1, Lat: 0.5, Lng: 0, AQI: 100},
		{UID: 2, Lat: 8, Lng: 0, AQI: 400},
	}
	est, ok := Interpolate(readings, 0, 0, 2, 500)
	require.True(t, ok)
	assert.Equal(t, 100, est.AQI)
}

func TestInterpolateNearestFallback(t *testing.T) {
	readings := []StationReading{
		{UID: 1, Lat: 10, Lng: 0, AQI: 77},
		{UID: 2, Lat: 20, Lng: 0, AQI: 10},
	}
	est, ok := Interpolate(readings, 0, 0, 2, 500)
	require.True(t, ok)
	assert.Equal(t, 77, est.AQI)
	assert.Equal(t, SourceNearestFallback, est.Source)
	assert.False(t, est.Interpolated)
	assert.Equal(t, airquality.StatusDegraded, est.Status)
	assert.Equal(t, LevelVeryLow, est.Confidence.Level)
	assert.Contains(t, est.Warning, "500km")
	assert.Contains(t, est.Warning, fmt.Sprintf("(%dkm away)", 1112))
}

func TestInterpolateNoReadings(t *testing.T) {
	est, ok := Interpolate(nil, 0, 0, 2, 500)
	assert.False(t, ok)
	assert.Equal(t, airquality.StatusNoData, est.Status)
}

type stubSatellite struct {
	reading airquality.SatelliteReading
	err     error
	calls   int
}

func (s *stubSatellite) Name() string { return "stub" }

func (s *stubSatellite) FetchSatellite(context.Context, float64, float64) (airquality.SatelliteReading, error) {
	s.calls++
	return s.reading, s.err
}

type stubPlaces struct{}

func (stubPlaces) PlaceName(context.Context, float64, float64) (string, error) {
	return "Hanoi, Vietnam", nil
}

func seededStore(t *testing.T, readings map[int]int) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for uid, aqi := range readings {
		_, err := s.InsertIfAbsent(context.Background(), airquality.Measurement{
			StationUID: uid, AQI: aqi, Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local),
		})
		require.NoError(t, err)
	}
	return s
}

var testStations = []airquality.Station{
	{UID: 1, Name: "North", Lat: 1, Lng: 0},
	{UID: 2, Name: "South", Lat: -1, Lng: 0},
	{UID: 3, Name: "Silent", Lat: 0, Lng: 0.001},
}

func TestEstimatorUsesLatestReadings(t *testing.T) {
	s := seededStore(t, map[int]int{1: 80, 2: 120, 99: 500})
	est := New(s, testStations, WithPlaceResolver(stubPlaces{})).Estimate(context.Background(), 0, 0)

	// Station 3 has no reading and station 99 is not configured.
	assert.Equal(t, 100, est.AQI)
	assert.Equal(t, SourceIDW, est.Source)
	assert.Equal(t, "Hanoi, Vietnam", est.Place)
}

func TestEstimatorHybridSatellite(t *testing.T) {
	s := seededStore(t, map[int]int{1: 80})
	sat := &stubSatellite{reading: airquality.SatelliteReading{AQI: 155, Source: "openweathermap_satellite"}}
	est := New(s, testStations, WithSatellite(sat)).Estimate(context.Background(), 30, 0)

	assert.Equal(t, 80, est.AQI, "ground estimate stays primary")
	assert.Equal(t, LevelVeryLow, est.Confidence.Level)
	assert.True(t, est.HybridSource)
	require.NotNil(t, est.Satellite)
	assert.Equal(t, 155, est.Satellite.AQI)
}

func TestEstimatorSkipsSatelliteWhenClose(t *testing.T) {
	s := seededStore(t, map[int]int{1: 80})
	sat := &stubSatellite{reading: airquality.SatelliteReading{AQI: 155}}
	est := New(s, testStations, WithSatellite(sat)).Estimate(context.Background(), 1.1, 0)

	assert.False(t, est.HybridSource)
	assert.Zero(t, sat.calls)
}

func TestEstimatorSatellitePrimary(t *testing.T) {
	s := seededStore(t, nil)
	sat := &stubSatellite{reading: airquality.SatelliteReading{AQI: 64, Source: "openaq_satellite"}}
	est := New(s, testStations, WithSatellite(sat)).Estimate(context.Background(), 5, 5)

	assert.Equal(t, 64, est.AQI)
	assert.Equal(t, SourceSatellite, est.Source)
	assert.Equal(t, LevelSatellite, est.Confidence.Level)
	assert.Equal(t, 60, est.Confidence.Percent)
	assert.Equal(t, airquality.StatusDegraded, est.Status)
}

func TestEstimatorNoData(t *testing.T) {
	s := seededStore(t, nil)
	est := New(s, testStations).Estimate(context.Background(), 5, 5)
	assert.Equal(t, airquality.StatusNoData, est.Status)

	failing := &stubSatellite{err: fmt.Errorf("x: %w", airquality.ErrUpstreamUnavailable)}
	est = New(s, testStations, WithSatellite(failing)).Estimate(context.Background(), 5, 5)
	assert.Equal(t, airquality.StatusNoData, est.Status)
	assert.Nil(t, est.Satellite)
}

type downStore struct{ *store.MemoryStore }

func (downStore) LatestPerStation(context.Context) (map[int]airquality.Measurement, error) {
	return nil, fmt.Errorf("latest: %w", airquality.ErrStorageUnavailable)
}

func TestEstimatorStoreUnavailable(t *testing.T) {
	est := New(downStore{store.NewMemoryStore()}, testStations).Estimate(context.Background(), 0, 0)
	assert.Equal(t, airquality.StatusUnavailable, est.Status)
}

func TestDistanceOneDecimal(t *testing.T) {
	readings := []StationReading{{UID: 1, Lat: 0.5, Lng: 0, AQI: 10}}
	est, _ := Interpolate(readings, 0, 0, 2, 500)
	assert.InDelta(t, 0.5*kmPerDegLat, est.DistanceKm, 0.05)
}
