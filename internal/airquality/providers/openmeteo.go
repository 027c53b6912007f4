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
	"github.com/i474232898/airwatch/internal/common"
)

// OpenMeteoProvider serves current weather from Open-Meteo. It needs no API
// key and backs OpenWeatherMap when that is not configured.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, timeout time.Duration) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: timeout,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: newCircuitBreaker("openmeteo"),
	}
}

// WithBaseURL points the provider at another forecast endpoint.
func (p *OpenMeteoProvider) WithBaseURL(u string) *OpenMeteoProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) CurrentWeather(ctx context.Context, lat, lng float64) (airquality.CurrentWeather, error) {
	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lng))
		values.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code,wind_speed_10m,is_day")
		values.Set("wind_speed_unit", "ms")
		values.Set("timezone", "UTC")
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.CurrentWeather{}, fmt.Errorf("openmeteo: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			Time        string  `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			Humidity    float64 `json:"relative_humidity_2m"`
			Apparent    float64 `json:"apparent_temperature"`
			WeatherCode int     `json:"weather_code"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			IsDay       int     `json:"is_day"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return airquality.CurrentWeather{}, fmt.Errorf("openmeteo: decode: %w", err)
	}

	// Open-Meteo reports ISO8601 without seconds.
	ts, err := time.Parse("2006-01-02T15:04", payload.Current.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	desc, icon := describeWeatherCode(payload.Current.WeatherCode)
	if payload.Current.IsDay == 1 {
		icon += "d"
	} else {
		icon += "n"
	}

	return airquality.CurrentWeather{
		TemperatureC: common.Round(payload.Current.Temperature, 1),
		HumidityPct:  payload.Current.Humidity,
		FeelsLikeC:   common.Round(payload.Current.Apparent, 1),
		Description:  desc,
		Icon:         icon,
		WindSpeedMS:  payload.Current.WindSpeed,
		Timestamp:    ts,
	}, nil
}

// describeWeatherCode maps a WMO weather code to a description and the
// matching OpenWeatherMap icon stem.
func describeWeatherCode(code int) (string, string) {
	switch {
	case code == 0:
		return "clear sky", "01"
	case code >= 1 && code <= 2:
		return "partly cloudy", "02"
	case code == 3:
		return "overcast clouds", "04"
	case code == 45 || code == 48:
		return "fog", "50"
	case code >= 51 && code <= 57:
		return "drizzle", "09"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "rain", "10"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "snow", "13"
	case code >= 95:
		return "thunderstorm", "11"
	default:
		return "unknown", "03"
	}
}
