package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/airwatch/internal/airquality"
)

const maxStationAQI = 999

// WAQIProvider reads station feeds from the World Air Quality Index API.
// Every station gets its own circuit breaker so a dead sensor never blocks
// healthy ones. Fetches are never retried within a cycle.
type WAQIProvider struct {
	token   string
	baseURL string
	httpCfg HTTPClientConfig
	now     func() time.Time

	mu       sync.Mutex
	breakers map[int]*gobreaker.CircuitBreaker
}

func NewWAQIProvider(client *http.Client, baseURL, token string, timeout time.Duration) *WAQIProvider {
	if baseURL == "" {
		baseURL = "https://api.waqi.info"
	}
	return &WAQIProvider{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Timeout: timeout,
		},
		now:      time.Now,
		breakers: make(map[int]*gobreaker.CircuitBreaker),
	}
}

func (p *WAQIProvider) Name() string {
	return "waqi"
}

func (p *WAQIProvider) breaker(uid int) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[uid]
	if !ok {
		cb = newCircuitBreaker(fmt.Sprintf("waqi-%d", uid))
		p.breakers[uid] = cb
	}
	return cb
}

type waqiFeed struct {
	Status string `json:"status"`
	Data   struct {
		AQI  json.RawMessage `json:"aqi"`
		IAQI struct {
			PM25 struct {
				V json.RawMessage `json:"v"`
			} `json:"pm25"`
		} `json:"iaqi"`
		Time struct {
			ISO string `json:"iso"`
		} `json:"time"`
	} `json:"data"`
}

// FetchReading polls a single station. Any fault is reported as
// airquality.ErrFetchFailure.
func (p *WAQIProvider) FetchReading(ctx context.Context, st airquality.Station) (airquality.Measurement, error) {
	ctx, cancel := withTimeout(ctx, p.httpCfg.Timeout)
	defer cancel()

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("token", p.token)
		u := fmt.Sprintf("%s/feed/@%d/?%s", p.baseURL, st.UID, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.breaker(st.UID), buildRequest)
	if err != nil {
		return airquality.Measurement{}, fmt.Errorf("%w: station %d: %v", airquality.ErrFetchFailure, st.UID, err)
	}
	defer resp.Body.Close()

	var feed waqiFeed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return airquality.Measurement{}, fmt.Errorf("%w: station %d: decode: %v", airquality.ErrFetchFailure, st.UID, err)
	}

	return p.parseFeed(st.UID, feed)
}

func (p *WAQIProvider) parseFeed(uid int, feed waqiFeed) (airquality.Measurement, error) {
	if feed.Status != "ok" {
		return airquality.Measurement{}, fmt.Errorf("%w: station %d: status %q", airquality.ErrFetchFailure, uid, feed.Status)
	}

	aqi, ok := parseAQI(feed.Data.AQI)
	if !ok {
		return airquality.Measurement{}, fmt.Errorf("%w: station %d: invalid aqi %s", airquality.ErrFetchFailure, uid, string(feed.Data.AQI))
	}

	return airquality.Measurement{
		StationUID: uid,
		AQI:        aqi,
		PM25:       parsePM25(feed.Data.IAQI.PM25.V),
		Timestamp:  p.parseTime(feed.Data.Time.ISO),
	}, nil
}

// parseAQI accepts a JSON number or string made only of decimal digits whose
// value lies in [0, 999]. Placeholders such as "-" or fractional values are
// rejected.
func parseAQI(raw json.RawMessage) (int, bool) {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > maxStationAQI {
		return 0, false
	}
	return n, true
}

func parsePM25(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		s = unq
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime keeps the wall clock of the reported time and drops its zone.
// Unparseable values fall back to the receipt time.
func (p *WAQIProvider) parseTime(iso string) time.Time {
	iso = strings.TrimSpace(iso)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, iso); err == nil {
			return airquality.NaiveLocal(t)
		}
	}
	return airquality.NaiveLocal(p.now())
}
