package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/airwatch/internal/airquality"
)

// RedisSatelliteCache keeps satellite readings in Redis as JSON with a TTL.
// Coordinates are rounded to two decimals (about 1 km) to share entries.
type RedisSatelliteCache struct {
	client *redis.Client
}

// NewRedisSatelliteCache connects and pings the server.
func NewRedisSatelliteCache(ctx context.Context, addr, password string, db int) (*RedisSatelliteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisSatelliteCache{client: client}, nil
}

// NewRedisSatelliteCacheFromClient wraps an existing client.
func NewRedisSatelliteCacheFromClient(client *redis.Client) *RedisSatelliteCache {
	return &RedisSatelliteCache{client: client}
}

func satelliteKey(lat, lng float64) string {
	return fmt.Sprintf("satellite:%.2f:%.2f", lat, lng)
}

func (r *RedisSatelliteCache) Get(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, bool, error) {
	data, err := r.client.Get(ctx, satelliteKey(lat, lng)).Bytes()
	if errors.Is(err, redis.Nil) {
		return airquality.SatelliteReading{}, false, nil
	}
	if err != nil {
		return airquality.SatelliteReading{}, false, err
	}

	var reading airquality.SatelliteReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return airquality.SatelliteReading{}, false, fmt.Errorf("failed to unmarshal satellite reading: %w", err)
	}
	return reading, true, nil
}

func (r *RedisSatelliteCache) Set(ctx context.Context, lat, lng float64, reading airquality.SatelliteReading, ttl time.Duration) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal satellite reading: %w", err)
	}
	return r.client.Set(ctx, satelliteKey(lat, lng), data, ttl).Err()
}

func (r *RedisSatelliteCache) Close() error {
	return r.client.Close()
}
