package forecast

import (
	"math"
)

const (
	minAQI = 0
	maxAQI = 500
)

// clampAQI truncates toward zero and bounds the result to [0, 500].
func clampAQI(v float64) int {
	t := math.Trunc(v)
	if t < minAQI {
		return minAQI
	}
	if t > maxAQI {
		return maxAQI
	}
	return int(t)
}

func trendFactor(t Trend) float64 {
	switch t {
	case TrendRising:
		return 1.05
	case TrendFalling:
		return 0.95
	default:
		return 1.0
	}
}

// heuristicForecast blends the latest value with the mean, compounds the
// trend every four hours and widens with the observed range.
func heuristicForecast(values []float64, trend Trend, horizons []int) (map[int]int, int) {
	current := values[0]
	avg := mean(values)
	base := current*0.7 + avg*0.3

	volatility := 0.1
	if len(values) > 1 {
		lo, hi := values[0], values[0]
		for _, v := range values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		volatility = math.Abs(hi-lo) / math.Max(avg, 1)
	}

	tf := trendFactor(trend)
	out := make(map[int]int, len(horizons))
	for _, h := range horizons {
		hf := float64(h)
		pred := base * math.Pow(tf, hf/4) * (1 + volatility*hf/24)
		out[h] = clampAQI(pred)
	}

	confidence := len(values) * 5
	if confidence > 40 {
		confidence = 40
	}
	return out, confidence
}
