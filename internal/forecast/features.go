package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/airwatch/internal/airquality"
)

// FeatureNames lists the model inputs in column order.
var FeatureNames = []string{"hour", "day_of_week", "is_weekend", "lag_1", "lag_3"}

// weekday maps time.Weekday onto Monday=0 … Sunday=6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func calendarFeatures(t time.Time) (hour, wd, weekend float64) {
	d := weekday(t)
	if d >= 5 {
		weekend = 1
	}
	return float64(t.Hour()), float64(d), weekend
}

// buildFeatures turns a most-recent-first history into training rows. The
// lags look at older readings; at the end of the series they fall back to
// the row's own value.
func buildFeatures(history []airquality.Measurement) ([][]float64, []float64) {
	X := make([][]float64, 0, len(history))
	y := make([]float64, 0, len(history))
	for i, m := range history {
		cur := float64(m.AQI)
		lag1, lag3 := cur, cur
		if i+1 < len(history) {
			lag1 = float64(history[i+1].AQI)
		}
		if i+3 < len(history) {
			lag3 = float64(history[i+3].AQI)
		}
		hour, wd, weekend := calendarFeatures(m.Timestamp)
		X = append(X, []float64{hour, wd, weekend, lag1, lag3})
		y = append(y, cur)
	}
	return X, y
}

type hourlyProfile struct {
	byHour  map[int]float64
	overall float64
}

func newHourlyProfile(history []airquality.Measurement) hourlyProfile {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	var total float64
	for _, m := range history {
		h := m.Timestamp.Hour()
		sums[h] += float64(m.AQI)
		counts[h]++
		total += float64(m.AQI)
	}
	p := hourlyProfile{byHour: make(map[int]float64, len(sums))}
	for h, s := range sums {
		p.byHour[h] = s / float64(counts[h])
	}
	if len(history) > 0 {
		p.overall = total / float64(len(history))
	}
	return p
}

// adjustment is the relative deviation of hour h from the overall mean.
func (p hourlyProfile) adjustment(h int) float64 {
	mean, ok := p.byHour[h]
	if !ok {
		mean = p.overall
	}
	return (mean - p.overall) / math.Max(p.overall, 1)
}

// sampleStd is the standard deviation with Bessel's correction.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}
