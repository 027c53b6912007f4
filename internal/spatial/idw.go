package spatial

import (
	"fmt"
	"math"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/common"
)

// Result sources.
const (
	SourceGroundStation   = "ground_station"
	SourceIDW             = "idw_interpolation"
	SourceNearestFallback = "nearest_station_fallback"
	SourceSatellite       = "satellite"
)

// exactRadiusKm is the distance under which the nearest station's value is
// returned as is.
const exactRadiusKm = 1.0

// StationReading is a station position joined with its latest measurement.
type StationReading struct {
	UID       int       `json:"uid"`
	Name      string    `json:"name"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AQI       int       `json:"aqi"`
	Timestamp time.Time `json:"timestamp"`
}

// Estimate is the outcome of a spatial query.
type Estimate struct {
	Status         airquality.Status            `json:"status"`
	Lat            float64                      `json:"lat"`
	Lng            float64                      `json:"lng"`
	AQI            int                          `json:"aqi"`
	NearestStation *StationReading              `json:"nearest_station,omitempty"`
	DistanceKm     float64                      `json:"distance_km"`
	Confidence     Confidence                   `json:"confidence"`
	Source         string                       `json:"source,omitempty"`
	Interpolated   bool                         `json:"interpolated"`
	Warning        string                       `json:"warning,omitempty"`
	Satellite      *airquality.SatelliteReading `json:"satellite,omitempty"`
	HybridSource   bool                         `json:"hybrid_source"`
	Place          string                       `json:"place,omitempty"`
}

// Interpolate computes the ground-only estimate for (lat, lng) using inverse
// distance weighting with the given power over stations within maxDistKm.
// ok is false when readings is empty.
func Interpolate(readings []StationReading, lat, lng, power, maxDistKm float64) (Estimate, bool) {
	if len(readings) == 0 {
		return Estimate{Status: airquality.StatusNoData, Lat: lat, Lng: lng}, false
	}

	dists := make([]float64, len(readings))
	nearest := 0
	for i, r := range readings {
		dists[i] = airquality.HaversineKm(lat, lng, r.Lat, r.Lng)
		if dists[i] < dists[nearest] {
			nearest = i
		}
	}

	nearestSt := readings[nearest]
	nearestDist := dists[nearest]
	est := Estimate{
		Status:         airquality.StatusOK,
		Lat:            lat,
		Lng:            lng,
		NearestStation: &nearestSt,
		DistanceKm:     common.Round(nearestDist, 1),
		Confidence:     ConfidenceFor(nearestDist),
	}

	if nearestDist < exactRadiusKm {
		est.AQI = nearestSt.AQI
		est.Source = SourceGroundStation
		return est, true
	}

	var num, den float64
	for i, r := range readings {
		if dists[i] > maxDistKm {
			continue
		}
		w := 1 / math.Pow(dists[i], power)
		num += float64(r.AQI) * w
		den += w
	}

	if den == 0 {
		est.Status = airquality.StatusDegraded
		est.AQI = nearestSt.AQI
		est.Source = SourceNearestFallback
		est.Warning = fmt.Sprintf("No station within %gkm. Using the nearest station (%dkm away).",
			maxDistKm, int(math.Round(nearestDist)))
		return est, true
	}

	est.AQI = int(math.Round(num / den))
	est.Source = SourceIDW
	est.Interpolated = true
	return est, true
}
