package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/common"
)

// OpenWeatherProvider serves current weather and modelled air pollution from
// OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, timeout time.Duration) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap_satellite",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: timeout,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openweather"),
		now:     time.Now,
	}
}

// WithBaseURL points the provider at another API root.
func (p *OpenWeatherProvider) WithBaseURL(u string) *OpenWeatherProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) get(ctx context.Context, path string, lat, lng float64, extra url.Values, out interface{}) error {
	if p.apiKey == "" {
		return fmt.Errorf("openweather: %w", airquality.ErrNotConfigured)
	}

	ctx, cancel := withTimeout(ctx, p.httpCfg.Timeout)
	defer cancel()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		for k, vs := range extra {
			values[k] = vs
		}
		values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
		values.Set("appid", p.apiKey)

		u := fmt.Sprintf("%s/%s?%s", p.baseURL, path, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return fmt.Errorf("openweather %s: %w: %v", path, airquality.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openweather %s: %w: decode: %v", path, airquality.ErrUpstreamUnavailable, err)
	}
	return nil
}

// CurrentWeather returns metric current conditions for a coordinate.
func (p *OpenWeatherProvider) CurrentWeather(ctx context.Context, lat, lng float64) (airquality.CurrentWeather, error) {
	var payload struct {
		Dt   int64  `json:"dt"`
		Name string `json:"name"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			Humidity  float64 `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
			Icon        string `json:"icon"`
		} `json:"weather"`
	}

	if err := p.get(ctx, "weather", lat, lng, url.Values{"units": {"metric"}}, &payload); err != nil {
		return airquality.CurrentWeather{}, err
	}

	ts := p.now().UTC()
	if payload.Dt > 0 {
		ts = time.Unix(payload.Dt, 0).UTC()
	}

	cw := airquality.CurrentWeather{
		TemperatureC: common.Round(payload.Main.Temp, 1),
		HumidityPct:  payload.Main.Humidity,
		FeelsLikeC:   common.Round(payload.Main.FeelsLike, 1),
		WindSpeedMS:  payload.Wind.Speed,
		Location:     payload.Name,
		Timestamp:    ts,
	}
	if len(payload.Weather) > 0 {
		cw.Description = payload.Weather[0].Description
		cw.Icon = payload.Weather[0].Icon
	}
	return cw, nil
}

var owmIndexLabels = map[int]string{
	1: "Good",
	2: "Fair",
	3: "Moderate",
	4: "Poor",
	5: "Very Poor",
}

// FetchSatellite reads the modelled pollution for a coordinate and converts
// its PM2.5 concentration to US EPA AQI.
func (p *OpenWeatherProvider) FetchSatellite(ctx context.Context, lat, lng float64) (airquality.SatelliteReading, error) {
	var payload struct {
		List []struct {
			Main struct {
				AQI int `json:"aqi"`
			} `json:"main"`
			Components struct {
				PM25 float64 `json:"pm2_5"`
				PM10 float64 `json:"pm10"`
				NO2  float64 `json:"no2"`
				O3   float64 `json:"o3"`
			} `json:"components"`
		} `json:"list"`
	}

	if err := p.get(ctx, "air_pollution", lat, lng, nil, &payload); err != nil {
		return airquality.SatelliteReading{}, err
	}
	if len(payload.List) == 0 {
		return airquality.SatelliteReading{}, fmt.Errorf("openweather air_pollution: %w: empty list", airquality.ErrUpstreamUnavailable)
	}

	item := payload.List[0]
	label, ok := owmIndexLabels[item.Main.AQI]
	if !ok {
		label = "N/A"
	}

	return airquality.SatelliteReading{
		AQI:      airquality.PM25ToAQI(item.Components.PM25),
		Source:   p.name,
		PM25:     common.Round(item.Components.PM25, 1),
		PM10:     common.Round(item.Components.PM10, 1),
		NO2:      common.Round(item.Components.NO2, 1),
		O3:       common.Round(item.Components.O3, 1),
		OWMIndex: item.Main.AQI,
		OWMLabel: label,
		DataType: "satellite_model",
	}, nil
}
