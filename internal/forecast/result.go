package forecast

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
)

// Placeholder labels used instead of a numeric prediction.
const (
	LabelLearning    = "learning"
	LabelUnavailable = "N/A"
)

// Prediction is either an AQI value or a placeholder label.
type Prediction struct {
	Value int
	Label string
}

func Value(v int) Prediction { return Prediction{Value: v} }

func Label(l string) Prediction { return Prediction{Label: l} }

// Available reports whether the prediction carries a number.
func (p Prediction) Available() bool { return p.Label == "" }

func (p Prediction) String() string {
	if p.Label != "" {
		return p.Label
	}
	return strconv.Itoa(p.Value)
}

// MarshalJSON renders the label string or the bare integer.
func (p Prediction) MarshalJSON() ([]byte, error) {
	if p.Label != "" {
		return json.Marshal(p.Label)
	}
	return json.Marshal(p.Value)
}

func (p *Prediction) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err == nil {
		*p = Prediction{Value: v}
		return nil
	}
	var l string
	if err := json.Unmarshal(data, &l); err != nil {
		return err
	}
	*p = Prediction{Label: l}
	return nil
}

// Mode names the path that produced a forecast.
type Mode string

const (
	ModeNoData    Mode = "no_data"
	ModeHeuristic Mode = "heuristic"
	ModeModel     Mode = "model"
	ModeFlat      Mode = "flat"
	ModeFailed    Mode = "failed"
)

// Result is a multi-horizon forecast for one station.
type Result struct {
	StationUID  int                `json:"station_uid"`
	Predictions map[int]Prediction `json:"predictions"`
	Trend       Trend              `json:"trend"`
	Confidence  int                `json:"confidence"`
	Mode        Mode               `json:"mode"`
	Status      airquality.Status  `json:"status"`
	ModelTier   string             `json:"model_tier,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

func labelled(uid int, horizons []int, label string, mode Mode, status airquality.Status, now time.Time) Result {
	preds := make(map[int]Prediction, len(horizons))
	for _, h := range horizons {
		preds[h] = Label(label)
	}
	return Result{
		StationUID:  uid,
		Predictions: preds,
		Trend:       TrendStable,
		Mode:        mode,
		Status:      status,
		GeneratedAt: now,
	}
}
