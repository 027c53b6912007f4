package airquality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPM25ToAQIBreakpoints(t *testing.T) {
	cases := []struct {
		pm25 float64
		want int
	}{
		{0, 0},
		{-3, 0},
		{6.0, 25},
		{12.0, 50},
		{12.05, 51},
		{35.4, 100},
		{55.4, 150},
		{150.4, 200},
		{500.4, 500},
		{600, 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PM25ToAQI(tc.pm25), "pm25=%v", tc.pm25)
	}
}

func TestHaversineKm(t *testing.T) {
	assert.InDelta(t, 0, HaversineKm(10, 100, 10, 100), 1e-9)

	// One degree of latitude is ~111.19 km.
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 1, 0), 0.01)

	// Hanoi -> Ho Chi Minh City, roughly 1140 km.
	d := HaversineKm(21.0285, 105.8542, 10.8231, 106.6297)
	assert.InDelta(t, 1138, d, 10)
}

func TestTimestampRoundTrip(t *testing.T) {
	src := time.Date(2024, 5, 1, 14, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	naive := NaiveLocal(src)
	assert.Equal(t, 14, naive.Hour())
	assert.Equal(t, time.Local, naive.Location())

	parsed, err := ParseTimestamp(FormatTimestamp(naive))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(naive))
}
