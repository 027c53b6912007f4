package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/airwatch/internal/airquality"
)

var validate = validator.New()

var errNoStations = errors.New("station list is empty")

// LoadStations reads the station list from a JSON or YAML file. YAML is a
// superset of JSON so one decoder covers both.
func LoadStations(path string) ([]airquality.Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	stations, err := ParseStations(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stations, nil
}

// ParseStations decodes and validates a station list. Numeric fields may be
// given as strings. The list order is preserved.
func ParseStations(data []byte) ([]airquality.Station, error) {
	var raw []map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	if len(raw) == 0 {
		return nil, errNoStations
	}

	stations := make([]airquality.Station, 0, len(raw))
	seen := make(map[int]bool, len(raw))
	for i, props := range raw {
		var st airquality.Station
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &st,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mapstructure decoder: %w", err)
		}
		if err := dec.Decode(props); err != nil {
			return nil, fmt.Errorf("station #%d: %w", i, err)
		}
		if err := validate.Struct(st); err != nil {
			return nil, fmt.Errorf("station #%d: %w", i, err)
		}
		if seen[st.UID] {
			return nil, fmt.Errorf("station #%d: duplicate uid %d", i, st.UID)
		}
		seen[st.UID] = true
		stations = append(stations, st)
	}
	return stations, nil
}
