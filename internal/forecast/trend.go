package forecast

import "gonum.org/v1/gonum/stat"

// Trend is the short-term direction of a station's readings.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// ClassifyTrend compares the mean of the three most recent values with the
// mean of up to three values before them. values are most recent first.
func ClassifyTrend(values []float64) Trend {
	if len(values) < 3 {
		return TrendStable
	}
	recent := values[:3]
	older := values[3:]
	if len(older) > 3 {
		older = older[:3]
	}
	if len(older) == 0 {
		return TrendStable
	}

	recentAvg := mean(recent)
	olderAvg := mean(older)
	if olderAvg <= 0 {
		return TrendStable
	}

	diffPct := (recentAvg - olderAvg) / olderAvg * 100
	switch {
	case diffPct > 10:
		return TrendRising
	case diffPct < -10:
		return TrendFalling
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}
