package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/forecast"
	"github.com/i474232898/airwatch/internal/spatial"
)

var validate = validator.New()

const (
	defaultAlertLimit = 20
	trendWindow       = 7 * 24 * time.Hour
)

// Estimator answers point estimates.
type Estimator interface {
	Estimate(ctx context.Context, lat, lng float64) spatial.Estimate
}

// Forecaster is the forecast engine surface used by the API.
type Forecaster interface {
	Predict(ctx context.Context, uid int, horizons ...int) forecast.Result
	Evaluate(ctx context.Context, uid int) (forecast.Evaluation, error)
	EvaluateAll(ctx context.Context, uids []int) (forecast.EvaluationSummary, error)
	ClearCache(uid int) error
	ClearAllCaches() error
}

// Deps are the collaborators behind the routes. Weather may be nil.
type Deps struct {
	Stations   []airquality.Station
	Store      airquality.Store
	Estimator  Estimator
	Forecaster Forecaster
	Weather    airquality.WeatherSource
	Now        func() time.Time
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Now == nil {
		d.Now = time.Now
	}
	names := make(map[int]string, len(d.Stations))
	for _, s := range d.Stations {
		names[s.UID] = s.Name
	}

	v1 := app.Group("/api/v1")

	v1.Get("/location-aqi", func(c *fiber.Ctx) error {
		q, err := parseCoordinates(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		est := d.Estimator.Estimate(c.UserContext(), *q.Lat, *q.Lng)
		switch est.Status {
		case airquality.StatusNoData:
			return fiber.NewError(fiber.StatusNotFound, "no air quality data available for this location")
		case airquality.StatusUnavailable:
			return fiber.NewError(fiber.StatusServiceUnavailable, "air quality data is temporarily unavailable")
		}
		return c.JSON(est)
	})

	v1.Get("/predictions/:uid", func(c *fiber.Ctx) error {
		uid, err := parseUID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(d.Forecaster.Predict(c.UserContext(), uid))
	})

	v1.Get("/stations", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		latest, err := d.Store.LatestPerStation(ctx)
		if err != nil {
			return storeError(err)
		}

		out := make([]stationView, 0, len(d.Stations))
		for _, s := range d.Stations {
			v := stationView{Station: s}
			if m, ok := latest[s.UID]; ok {
				aqi, ts := m.AQI, m.Timestamp
				v.AQI = &aqi
				v.Timestamp = &ts
				f := d.Forecaster.Predict(ctx, s.UID)
				v.Forecast = &f
			}
			out = append(out, v)
		}
		return c.JSON(out)
	})

	v1.Get("/alerts", func(c *fiber.Ctx) error {
		q := alertsQuery{Limit: defaultAlertLimit}
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "limit must be an integer")
			}
			q.Limit = n
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		alerts, err := d.Store.RecentAlerts(c.UserContext(), q.Limit)
		if err != nil {
			return storeError(err)
		}
		out := make([]alertView, 0, len(alerts))
		for _, a := range alerts {
			name, ok := names[a.StationUID]
			if !ok {
				name = "Station " + strconv.Itoa(a.StationUID)
			}
			out = append(out, alertView{Alert: a, StationName: name})
		}
		return c.JSON(out)
	})

	v1.Get("/trends", func(c *fiber.Ctx) error {
		since := d.Now().Add(-trendWindow)
		hours, err := d.Store.HourlyTrend(c.UserContext(), since)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(fiber.Map{
			"since": since.Format(airquality.TimestampLayout),
			"hours": hours,
		})
	})

	v1.Get("/weather", func(c *fiber.Ctx) error {
		if d.Weather == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "weather source not configured")
		}
		q, err := parseCoordinates(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		w, err := d.Weather.CurrentWeather(c.UserContext(), *q.Lat, *q.Lng)
		if err != nil {
			if errors.Is(err, airquality.ErrNotConfigured) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "weather source not configured")
			}
			return fiber.NewError(fiber.StatusBadGateway, "failed to fetch weather data")
		}
		return c.JSON(w)
	})

	v1.Get("/model-evaluation/:uid", func(c *fiber.Ctx) error {
		uid, err := parseUID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		ev, err := d.Forecaster.Evaluate(c.UserContext(), uid)
		if err != nil {
			if errors.Is(err, forecast.ErrInsufficientHistory) {
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			}
			return storeError(err)
		}
		return c.JSON(ev)
	})

	v1.Get("/model-evaluation-all", func(c *fiber.Ctx) error {
		uids := make([]int, 0, len(d.Stations))
		for _, s := range d.Stations {
			uids = append(uids, s.UID)
		}
		sum, err := d.Forecaster.EvaluateAll(c.UserContext(), uids)
		if err != nil {
			return storeError(err)
		}
		return c.JSON(sum)
	})

	v1.Delete("/models/:uid?", func(c *fiber.Ctx) error {
		if c.Params("uid") == "" {
			if err := d.Forecaster.ClearAllCaches(); err != nil {
				return fiber.NewError(fiber.StatusInternalServerError, err.Error())
			}
			return c.JSON(fiber.Map{"cleared": "all"})
		}
		uid, err := parseUID(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := d.Forecaster.ClearCache(uid); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"cleared": uid})
	})
}

type stationView struct {
	airquality.Station
	AQI       *int             `json:"aqi"`
	Timestamp *time.Time       `json:"timestamp"`
	Forecast  *forecast.Result `json:"forecast,omitempty"`
}

type alertView struct {
	airquality.Alert
	StationName string `json:"station_name"`
}

type alertsQuery struct {
	Limit int `validate:"gte=1,lte=200"`
}

// coordinateQuery holds a lat/lng pair from the query string.
type coordinateQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lng *float64 `validate:"required,gte=-180,lte=180"`
}

func parseCoordinates(c *fiber.Ctx) (coordinateQuery, error) {
	var q coordinateQuery
	for _, f := range []struct {
		name string
		dst  **float64
	}{{"lat", &q.Lat}, {"lng", &q.Lng}} {
		raw := c.Query(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, errors.New(f.name + " must be a number")
		}
		*f.dst = &v
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

type uidParam struct {
	UID int `validate:"gt=0"`
}

func parseUID(c *fiber.Ctx) (int, error) {
	n, err := strconv.Atoi(c.Params("uid"))
	if err != nil {
		return 0, errors.New("station uid must be an integer")
	}
	p := uidParam{UID: n}
	if err := validate.Struct(p); err != nil {
		return 0, err
	}
	return p.UID, nil
}

func storeError(err error) error {
	if errors.Is(err, airquality.ErrStorageUnavailable) || errors.Is(err, airquality.ErrStorageContention) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "storage temporarily unavailable")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "internal error")
}
