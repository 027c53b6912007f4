package airquality

import "math"

type pm25Band struct {
	concLo, concHi float64
	aqiLo, aqiHi   float64
}

// US EPA PM2.5 breakpoints (µg/m³).
var pm25Bands = []pm25Band{
	{0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// PM25ToAQI converts a PM2.5 concentration to the US EPA AQI scale.
// Concentrations above the top band clamp to 500; values falling between two
// bands are assigned to the upper one.
func PM25ToAQI(pm25 float64) int {
	if math.IsNaN(pm25) || pm25 <= 0 {
		return 0
	}
	for _, b := range pm25Bands {
		if pm25 <= b.concHi {
			c := math.Max(pm25, b.concLo)
			aqi := (b.aqiHi-b.aqiLo)/(b.concHi-b.concLo)*(c-b.concLo) + b.aqiLo
			return int(math.Round(aqi))
		}
	}
	return 500
}
