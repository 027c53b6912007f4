package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/airwatch/internal/airquality"
)

// geocoder keeps its API key in a package variable.
var geocoderMu sync.Mutex

// GeocoderPlaceResolver labels coordinates via Google reverse geocoding.
type GeocoderPlaceResolver struct {
	apiKey  string
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func NewGeocoderPlaceResolver(apiKey string) *GeocoderPlaceResolver {
	return &GeocoderPlaceResolver{apiKey: apiKey, reverse: geocoder.GeocodingReverse}
}

// PlaceName returns "City, Country" (or the formatted address) for a point.
// The underlying client has no context support, so ctx only gates the call.
func (g *GeocoderPlaceResolver) PlaceName(ctx context.Context, lat, lng float64) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("geocoder: %w", airquality.ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	geocoderMu.Lock()
	geocoder.ApiKey = g.apiKey
	addresses, err := g.reverse(geocoder.Location{Latitude: lat, Longitude: lng})
	geocoderMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("geocoder: %w: %v", airquality.ErrUpstreamUnavailable, err)
	}
	if len(addresses) == 0 {
		return "", fmt.Errorf("geocoder: %w: no address", airquality.ErrUpstreamUnavailable)
	}
	return placeLabel(addresses[0]), nil
}

func placeLabel(a geocoder.Address) string {
	var parts []string
	for _, p := range []string{a.City, a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return a.FormattedAddress
	}
	return strings.Join(parts, ", ")
}
