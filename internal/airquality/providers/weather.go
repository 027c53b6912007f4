package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/i474232898/airwatch/internal/airquality"
)

// WeatherChain asks each source in order and returns the first answer.
type WeatherChain struct {
	sources []airquality.WeatherSource
}

func NewWeatherChain(sources ...airquality.WeatherSource) *WeatherChain {
	return &WeatherChain{sources: sources}
}

func (c *WeatherChain) CurrentWeather(ctx context.Context, lat, lng float64) (airquality.CurrentWeather, error) {
	var errs *multierror.Error
	for _, src := range c.sources {
		w, err := src.CurrentWeather(ctx, lat, lng)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, airquality.ErrNotConfigured) {
			errs = multierror.Append(errs, err)
		}
	}
	if errs == nil {
		return airquality.CurrentWeather{}, fmt.Errorf("weather: %w", airquality.ErrNotConfigured)
	}
	return airquality.CurrentWeather{}, fmt.Errorf("%w: %v", airquality.ErrUpstreamUnavailable, errs)
}
