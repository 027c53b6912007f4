package spatial

// Confidence grades an estimate by the distance to the nearest station.
type Confidence struct {
	Level   string `json:"level"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
	Color   string `json:"color"`
}

const (
	LevelHigh      = "high"
	LevelMedium    = "medium"
	LevelLow       = "low"
	LevelVeryLow   = "very_low"
	LevelSatellite = "satellite"
)

var tiers = []struct {
	maxKm float64
	conf  Confidence
}{
	{30, Confidence{LevelHigh, 95, "Accurate data", "#22c55e"}},
	{100, Confidence{LevelMedium, 70, "Approximate estimate", "#eab308"}},
	{200, Confidence{LevelLow, 40, "Rough estimate", "#f97316"}},
}

var (
	veryLowConfidence   = Confidence{LevelVeryLow, 20, "No nearby station", "#ef4444"}
	satelliteConfidence = Confidence{LevelSatellite, 60, "Satellite model estimate", "#8b5cf6"}
)

// ConfidenceFor returns the tier for a nearest-station distance. Tier
// boundaries are inclusive.
func ConfidenceFor(distanceKm float64) Confidence {
	for _, t := range tiers {
		if distanceKm <= t.maxKm {
			return t.conf
		}
	}
	return veryLowConfidence
}
