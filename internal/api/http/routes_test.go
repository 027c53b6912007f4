package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/forecast"
	"github.com/i474232898/airwatch/internal/spatial"
	"github.com/i474232898/airwatch/internal/store"
)

var now = time.Date(2024, 6, 3, 12, 0, 0, 0, time.Local)

var stations = []airquality.Station{
	{UID: 1, Name: "Central", Lat: 13.75, Lng: 100.50},
	{UID: 2, Name: "North", Lat: 14.00, Lng: 100.50},
}

type fakeWeather struct {
	w   airquality.CurrentWeather
	err error
}

func (f fakeWeather) CurrentWeather(context.Context, float64, float64) (airquality.CurrentWeather, error) {
	return f.w, f.err
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) LatestPerStation(context.Context) (map[int]airquality.Measurement, error) {
	return nil, fmt.Errorf("latest: %w", airquality.ErrStorageUnavailable)
}

func newApp(t *testing.T, s airquality.Store, weather airquality.WeatherSource) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	clock := func() time.Time { return now }
	RegisterRoutes(app, Deps{
		Stations:   stations,
		Store:      s,
		Estimator:  spatial.New(s, stations),
		Forecaster: forecast.NewEngine(s, forecast.WithClock(clock)),
		Weather:    weather,
		Now:        clock,
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, target string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func seed(t *testing.T, s airquality.Store) {
	t.Helper()
	ctx := context.Background()
	for i, aqi := range []int{60, 62, 64} {
		_, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 1, AQI: aqi, Timestamp: now.Add(time.Duration(i-2) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := s.InsertIfAbsent(ctx, airquality.Measurement{StationUID: 2, AQI: 120, Timestamp: now})
	require.NoError(t, err)
	require.NoError(t, s.InsertAlert(ctx, airquality.Alert{StationUID: 2, Type: airquality.AlertSpike, Message: "AQI spiked from 80 to 120", AQIValue: 120}))
	require.NoError(t, s.InsertAlert(ctx, airquality.Alert{StationUID: 99, Type: airquality.AlertSpike, Message: "AQI spiked from 90 to 130", AQIValue: 130}))
}

func TestLocationAQI(t *testing.T) {
	s := store.NewMemoryStore()
	app := newApp(t, s, nil)

	code, _ := do(t, app, http.MethodGet, "/api/v1/location-aqi?lat=13.75&lng=100.5")
	assert.Equal(t, http.StatusNotFound, code)

	seed(t, s)
	code, body := do(t, app, http.MethodGet, "/api/v1/location-aqi?lat=13.75&lng=100.5")
	require.Equal(t, http.StatusOK, code, string(body))

	var est spatial.Estimate
	require.NoError(t, json.Unmarshal(body, &est))
	assert.Equal(t, 64, est.AQI)
	assert.False(t, est.Interpolated)
	assert.Equal(t, "high", est.Confidence.Level)
}

func TestLocationAQIValidation(t *testing.T) {
	app := newApp(t, store.NewMemoryStore(), nil)
	for _, q := range []string{"", "?lat=13", "?lat=abc&lng=1", "?lat=91&lng=0", "?lat=0&lng=181"} {
		code, body := do(t, app, http.MethodGet, "/api/v1/location-aqi"+q)
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.Contains(t, string(body), `"error":true`)
	}
}

func TestPredictions(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s)
	app := newApp(t, s, nil)

	code, body := do(t, app, http.MethodGet, "/api/v1/predictions/1")
	require.Equal(t, http.StatusOK, code)
	var res forecast.Result
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Len(t, res.Predictions, 4)
	assert.Equal(t, forecast.ModeHeuristic, res.Mode)

	code, body = do(t, app, http.MethodGet, "/api/v1/predictions/42")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"learning"`)

	code, _ = do(t, app, http.MethodGet, "/api/v1/predictions/abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, app, http.MethodGet, "/api/v1/predictions/0")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStations(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s)
	app := newApp(t, s, nil)

	code, body := do(t, app, http.MethodGet, "/api/v1/stations")
	require.Equal(t, http.StatusOK, code)

	var out []struct {
		UID      int              `json:"uid"`
		Name     string           `json:"name"`
		AQI      *int             `json:"aqi"`
		Forecast *forecast.Result `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "Central", out[0].Name)
	require.NotNil(t, out[0].AQI)
	assert.Equal(t, 64, *out[0].AQI)
	require.NotNil(t, out[1].Forecast)
	assert.Equal(t, 2, out[1].Forecast.StationUID)

	code, _ = do(t, newApp(t, brokenStore{store.NewMemoryStore()}, nil), http.MethodGet, "/api/v1/stations")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAlerts(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s)
	app := newApp(t, s, nil)

	code, body := do(t, app, http.MethodGet, "/api/v1/alerts")
	require.Equal(t, http.StatusOK, code)
	var out []alertView
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out, 2)
	names := map[int]string{}
	for _, a := range out {
		names[a.StationUID] = a.StationName
	}
	assert.Equal(t, "North", names[2])
	assert.Equal(t, "Station 99", names[99])

	code, body = do(t, app, http.MethodGet, "/api/v1/alerts?limit=1")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Len(t, out, 1)

	for _, q := range []string{"0", "201", "x"} {
		code, _ = do(t, app, http.MethodGet, "/api/v1/alerts?limit="+q)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}

func TestTrends(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s)
	code, body := do(t, newApp(t, s, nil), http.MethodGet, "/api/v1/trends")
	require.Equal(t, http.StatusOK, code)

	var out struct {
		Hours []airquality.HourlyAverage `json:"hours"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.Hours)
}

func TestWeather(t *testing.T) {
	code, _ := do(t, newApp(t, store.NewMemoryStore(), nil), http.MethodGet, "/api/v1/weather?lat=1&lng=2")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	ok := fakeWeather{w: airquality.CurrentWeather{TemperatureC: 31.5, Description: "clear sky", Location: "Bangkok"}}
	code, body := do(t, newApp(t, store.NewMemoryStore(), ok), http.MethodGet, "/api/v1/weather?lat=1&lng=2")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"temp":31.5`)

	failing := fakeWeather{err: errors.New("boom")}
	code, _ = do(t, newApp(t, store.NewMemoryStore(), failing), http.MethodGet, "/api/v1/weather?lat=1&lng=2")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestModelEvaluation(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s)
	app := newApp(t, s, nil)

	code, _ := do(t, app, http.MethodGet, "/api/v1/model-evaluation/1")
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, body := do(t, app, http.MethodGet, "/api/v1/model-evaluation-all")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"best_model":"N/A"`)
}

func TestClearModels(t *testing.T) {
	app := newApp(t, store.NewMemoryStore(), nil)

	code, body := do(t, app, http.MethodDelete, "/api/v1/models/5")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"cleared":5}`, string(body))

	code, body = do(t, app, http.MethodDelete, "/api/v1/models")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"cleared":"all"}`, string(body))
}
