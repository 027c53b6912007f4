package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/metrics"
)

// SatelliteChain asks each source in order and returns the first reading.
type SatelliteChain struct {
	sources []airquality.SatelliteSource
}

func NewSatelliteChain(sources ...airquality.SatelliteSource) *SatelliteChain {
	return &SatelliteChain{sources: sources}
}

func (c *SatelliteChain) Name() string {
	return "satellite_chain"
}

// Len reports how many sources are configured.
func (c *SatelliteChain) Len() int {
	return len(c.sources)
}

func (c *SatelliteChain) FetchSatellite(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, error) {
	var errs *multierror.Error
	for _, src := range c.sources {
		reading, err := src.FetchSatellite(ctx, lat, lng)
		if err == nil {
			return reading, nil
		}
		if !errors.Is(err, airquality.ErrNotConfigured) {
			logger.Warnf("satellite: %s failed for (%.4f, %.4f): %v", src.Name(), lat, lng, err)
		}
		errs = multierror.Append(errs, err)
	}
	if errs == nil {
		return airquality.SatelliteReading{}, fmt.Errorf("satellite: %w", airquality.ErrNotConfigured)
	}
	return airquality.SatelliteReading{}, fmt.Errorf("satellite: %w: %v", airquality.ErrUpstreamUnavailable, errs.ErrorOrNil())
}

// SatelliteCache stores readings keyed by coordinate.
type SatelliteCache interface {
	Get(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, bool, error)
	Set(ctx context.Context, lat, lng float64, r airquality.SatelliteReading, ttl time.Duration) error
}

// CachedSatellite wraps a source with a read-through cache. Cache failures
// are logged and bypassed.
type CachedSatellite struct {
	source airquality.SatelliteSource
	cache  SatelliteCache
	ttl    time.Duration
}

func NewCachedSatellite(source airquality.SatelliteSource, cache SatelliteCache, ttl time.Duration) *CachedSatellite {
	return &CachedSatellite{source: source, cache: cache, ttl: ttl}
}

func (c *CachedSatellite) Name() string {
	return c.source.Name()
}

func (c *CachedSatellite) FetchSatellite(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, error) {
	reading, ok, err := c.cache.Get(ctx, lat, lng)
	switch {
	case err != nil:
		metrics.SatelliteCache.WithLabelValues("error").Inc()
		logger.Warnf("satellite cache: get failed: %v", err)
	case ok:
		metrics.SatelliteCache.WithLabelValues("hit").Inc()
		return reading, nil
	default:
		metrics.SatelliteCache.WithLabelValues("miss").Inc()
	}

	reading, err = c.source.FetchSatellite(ctx, lat, lng)
	if err != nil {
		return reading, err
	}
	if err := c.cache.Set(ctx, lat, lng, reading, c.ttl); err != nil {
		logger.Warnf("satellite cache: set failed: %v", err)
	}
	return reading, nil
}
