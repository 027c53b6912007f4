// Package forecast produces multi-horizon AQI forecasts per station: a
// heuristic for short histories and a cached gradient-boosted model with
// rolling lag propagation otherwise.
package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/metrics"
	"github.com/i474232898/airwatch/internal/modelcache"
)

// DefaultHorizons are the forecast offsets in hours.
var DefaultHorizons = []int{1, 6, 12, 24}

const (
	defaultHistoryLimit = 168
	// modelMinRecords is the history length from which the trained model is used.
	modelMinRecords = 15
	minFeatureRows  = 5
	maxConfidence   = 95
)

// Engine owns the model cache and the store handle used for forecasting.
type Engine struct {
	store        airquality.Store
	disk         modelcache.Persister[*GBRT]
	cache        *modelcache.Cache[*GBRT]
	params       GBRTParams
	ttl          time.Duration
	historyLimit int
	now          func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now for model expiry and target hours.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithModelTTL sets how long a trained model stays valid (default 24h).
func WithModelTTL(d time.Duration) Option {
	return func(e *Engine) { e.ttl = d }
}

// WithPersister enables the on-disk model tier.
func WithPersister(p modelcache.Persister[*GBRT]) Option {
	return func(e *Engine) { e.disk = p }
}

func WithGBRTParams(p GBRTParams) Option {
	return func(e *Engine) { e.params = p }
}

func NewEngine(store airquality.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		params:       DefaultGBRTParams,
		ttl:          24 * time.Hour,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = modelcache.New[*GBRT](e.disk,
		modelcache.WithClock[*GBRT](e.now),
		modelcache.WithSaveErrorHandler[*GBRT](func(uid int, err error) {
			logger.Warnf("forecast: failed to persist model for station %d: %v", uid, err)
		}),
	)
	return e
}

func normalizeHorizons(horizons []int) []int {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	seen := make(map[int]bool, len(horizons))
	out := make([]int, 0, len(horizons))
	for _, h := range horizons {
		if h > 0 && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

// Predict forecasts station uid at each horizon (hours ahead). It never
// returns an error; failures yield "N/A" predictions with StatusUnavailable.
func (e *Engine) Predict(ctx context.Context, uid int, horizons ...int) Result {
	horizons = normalizeHorizons(horizons)
	now := e.now()

	res, err := e.predict(ctx, uid, horizons, now)
	if err != nil {
		logger.Errorf("forecast: station %d: %v", uid, err)
		res = labelled(uid, horizons, LabelUnavailable, ModeFailed, airquality.StatusUnavailable, now)
	}
	metrics.Forecasts.WithLabelValues(string(res.Mode)).Inc()
	return res
}

func (e *Engine) predict(ctx context.Context, uid int, horizons []int, now time.Time) (Result, error) {
	history, err := e.store.History(ctx, uid, e.historyLimit)
	if err != nil {
		return Result{}, err
	}
	if len(history) == 0 {
		return labelled(uid, horizons, LabelLearning, ModeNoData, airquality.StatusNoData, now), nil
	}

	values := make([]float64, len(history))
	for i, m := range history {
		values[i] = float64(m.AQI)
	}
	trend := ClassifyTrend(values)

	res := Result{
		StationUID:  uid,
		Predictions: make(map[int]Prediction, len(horizons)),
		Trend:       trend,
		GeneratedAt: now,
	}

	if len(values) < modelMinRecords {
		preds, conf := heuristicForecast(values, trend, horizons)
		for h, v := range preds {
			res.Predictions[h] = Value(v)
		}
		res.Confidence = conf
		res.Mode = ModeHeuristic
		res.Status = airquality.StatusDegraded
		return res, nil
	}

	X, y := buildFeatures(history)
	if len(X) < minFeatureRows {
		for _, h := range horizons {
			res.Predictions[h] = Value(clampAQI(values[0]))
		}
		res.Confidence = 30
		res.Mode = ModeFlat
		res.Status = airquality.StatusDegraded
		return res, nil
	}

	model, tier, err := e.cache.GetOrCompute(ctx, uid, e.ttl, func(context.Context) (*GBRT, error) {
		m, err := FitGBRT(X, y, e.params)
		if err != nil {
			return nil, err
		}
		metrics.ModelTrainings.Inc()
		logger.Infof("forecast: trained new model for station %d on %d rows", uid, len(X))
		return m, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("model: %w", err)
	}
	if tier != modelcache.TierComputed {
		metrics.ModelCacheHits.WithLabelValues(string(tier)).Inc()
	}

	score := R2(y, predictAll(model, X))
	conf := int(math.Trunc(score * 100))
	if conf > maxConfidence {
		conf = maxConfidence
	}
	if conf < 0 {
		conf = 0
	}

	preds, err := rollingForecast(model, history, values, trend, horizons, now)
	if err != nil {
		return Result{}, err
	}
	for h, v := range preds {
		res.Predictions[h] = Value(v)
	}
	res.Confidence = conf
	res.Mode = ModeModel
	res.Status = airquality.StatusOK
	res.ModelTier = string(tier)
	return res, nil
}

// rollingForecast walks the horizons in ascending order, feeding each
// prediction back as the lag input of the next step.
func rollingForecast(model Regressor, history []airquality.Measurement, values []float64, trend Trend, horizons []int, now time.Time) (map[int]int, error) {
	profile := newHourlyProfile(history)

	volatility := 0.1
	if len(values) > 1 {
		volatility = sampleStd(values) / math.Max(profile.overall, 1)
	}

	current := values[0]
	prevLag1 := current
	prevLag3 := current
	if len(values) > 2 {
		prevLag3 = values[2]
	}
	prevPred := current
	prevHorizon := 0

	out := make(map[int]int, len(horizons))
	for _, h := range horizons {
		hf := float64(h)
		target := now.Add(time.Duration(h) * time.Hour)
		hour, wd, weekend := calendarFeatures(target)

		gap := h - prevHorizon
		lag1 := prevPred
		if gap > 1 {
			lag1 = prevPred*0.8 + current*0.2
		}
		lag3 := prevPred
		if gap <= 3 {
			lag3 = prevLag3*0.7 + prevPred*0.3
		}

		strength := 1 + (hf/24)*0.15
		trendAdj := 1.0
		switch trend {
		case TrendRising:
			trendAdj = 1 + 0.02*hf*strength
		case TrendFalling:
			trendAdj = 1 - 0.02*hf*strength
		}

		raw := model.Predict([]float64{hour, wd, weekend, lag1, lag3})
		adjusted := raw * trendAdj * (1 + profile.adjustment(target.Hour())*0.3)

		uncertainty := volatility * (hf / 6) * 0.1
		switch trend {
		case TrendRising:
			adjusted *= 1 + uncertainty
		case TrendFalling:
			adjusted *= 1 - uncertainty*0.5
		}

		if math.IsNaN(adjusted) || math.IsInf(adjusted, 0) {
			return nil, fmt.Errorf("non-finite prediction at +%dh", h)
		}
		final := clampAQI(adjusted)
		out[h] = final

		prevLag3 = prevLag1
		prevLag1 = prevPred
		prevPred = float64(final)
		prevHorizon = h
	}
	return out, nil
}

// ClearCache drops the cached model for uid from memory and disk.
func (e *Engine) ClearCache(uid int) error {
	return e.cache.Clear(uid)
}

// ClearAllCaches drops every cached model.
func (e *Engine) ClearAllCaches() error {
	return e.cache.ClearAll()
}

// ModelTrainedAt reports when the in-memory model for uid was trained.
func (e *Engine) ModelTrainedAt(uid int) (time.Time, bool) {
	return e.cache.TrainedAt(uid)
}
