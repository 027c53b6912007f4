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

// WeatherAPIProvider serves current weather from WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, timeout time.Duration) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/current.json",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: timeout,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) WithBaseURL(u string) *WeatherAPIProvider {
	p.baseURL = strings.TrimRight(u, "/")
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) CurrentWeather(ctx context.Context, lat, lng float64) (airquality.CurrentWeather, error) {
	if p.apiKey == "" {
		return airquality.CurrentWeather{}, fmt.Errorf("weatherapi: %w", airquality.ErrNotConfigured)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", lat, lng))
		return http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+values.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return airquality.CurrentWeather{}, fmt.Errorf("weatherapi: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Location struct {
			Name    string `json:"name"`
			Country string `json:"country"`
		} `json:"location"`
		Current struct {
			LastUpdatedEpoch int64   `json:"last_updated_epoch"`
			TempC            float64 `json:"temp_c"`
			FeelsLikeC       float64 `json:"feelslike_c"`
			Humidity         float64 `json:"humidity"`
			WindKph          float64 `json:"wind_kph"`
			IsDay            int     `json:"is_day"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return airquality.CurrentWeather{}, fmt.Errorf("weatherapi: decode: %w", err)
	}

	ts := time.Now().UTC()
	if payload.Current.LastUpdatedEpoch > 0 {
		ts = time.Unix(payload.Current.LastUpdatedEpoch, 0).UTC()
	}

	icon := conditionIcon(payload.Current.Condition.Text)
	if payload.Current.IsDay == 1 {
		icon += "d"
	} else {
		icon += "n"
	}

	loc := payload.Location.Name
	if payload.Location.Country != "" && loc != "" {
		loc += ", " + payload.Location.Country
	}

	return airquality.CurrentWeather{
		TemperatureC: common.Round(payload.Current.TempC, 1),
		HumidityPct:  payload.Current.Humidity,
		FeelsLikeC:   common.Round(payload.Current.FeelsLikeC, 1),
		Description:  strings.ToLower(strings.TrimSpace(payload.Current.Condition.Text)),
		Icon:         icon,
		// kph to m/s
		WindSpeedMS: common.Round(payload.Current.WindKph/3.6, 1),
		Location:    loc,
		Timestamp:   ts,
	}, nil
}

// conditionIcon maps a free-text condition onto an OpenWeatherMap icon stem.
func conditionIcon(text string) string {
	text = strings.ToLower(text)
	switch {
	case common.HasAny(text, "thunder", "storm"):
		return "11"
	case common.HasAny(text, "snow", "sleet", "blizzard", "ice"):
		return "13"
	case common.HasAny(text, "drizzle"):
		return "09"
	case common.HasAny(text, "rain", "shower"):
		return "10"
	case common.HasAny(text, "fog", "mist", "haze"):
		return "50"
	case common.HasAny(text, "overcast"):
		return "04"
	case common.HasAny(text, "cloud"):
		return "02"
	case common.HasAny(text, "sunny", "clear"):
		return "01"
	default:
		return "03"
	}
}
