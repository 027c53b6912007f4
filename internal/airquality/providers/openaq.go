package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airwatch/internal/airquality"
)

// OpenAQProvider looks up the closest reporting PM2.5 sensors via OpenAQ v3.
type OpenAQProvider struct {
	apiKey  string
	baseURL string
	radiusM int
	limit   int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenAQProvider(client *http.Client, apiKey string, timeout time.Duration) *OpenAQProvider {
	return &OpenAQProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openaq.org/v3",
		radiusM: 300000,
		limit:   5,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: timeout,
			Backoff: BackoffConfig{
				MaxRetries:      1,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     time.Second,
			},
		},
		circuit: newCircuitBreaker("openaq"),
	}
}

func (p *OpenAQProvider) WithBaseURL(u string) *OpenAQProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *OpenAQProvider) Name() string {
	return "openaq_satellite"
}

func (p *OpenAQProvider) FetchSatellite(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, error) {
	if p.apiKey == "" {
		return airquality.SatelliteReading{}, fmt.Errorf("openaq: %w", airquality.ErrNotConfigured)
	}

	ctx, cancel := withTimeout(ctx, p.httpCfg.Timeout)
	defer cancel()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("coordinates", fmt.Sprintf("%g,%g", lat, lng))
		values.Set("radius", fmt.Sprint(p.radiusM))
		values.Set("limit", fmt.Sprint(p.limit))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/locations?"+values.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-Key", p.apiKey)
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.SatelliteReading{}, fmt.Errorf("openaq: %w: %v", airquality.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name    string `json:"name"`
			Sensors []struct {
				Parameter struct {
					Name string `json:"name"`
				} `json:"parameter"`
				Latest *struct {
					Value *float64 `json:"value"`
				} `json:"latest"`
			} `json:"sensors"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return airquality.SatelliteReading{}, fmt.Errorf("openaq: %w: decode: %v", airquality.ErrUpstreamUnavailable, err)
	}

	for _, loc := range payload.Results {
		for _, sensor := range loc.Sensors {
			if sensor.Parameter.Name != "pm25" || sensor.Latest == nil || sensor.Latest.Value == nil {
				continue
			}
			pm25 := *sensor.Latest.Value
			if pm25 <= 0 {
				continue
			}
			return airquality.SatelliteReading{
				AQI:          airquality.PM25ToAQI(pm25),
				Source:       p.Name(),
				PM25:         pm25,
				LocationName: loc.Name,
			}, nil
		}
	}
	return airquality.SatelliteReading{}, fmt.Errorf("openaq: %w: no pm25 sensor in range", airquality.ErrUpstreamUnavailable)
}
