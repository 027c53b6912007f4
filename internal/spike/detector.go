// Package spike raises alerts when a fresh reading jumps well above the
// station's recent level.
package spike

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/metrics"
	"github.com/i474232898/airwatch/internal/retry"
)

const (
	// window is the number of most recent readings inspected, the current
	// one included.
	window = 3

	ratioThreshold = 1.3
	floorAQI       = 100
)

// Result describes one evaluation.
type Result struct {
	Spike       bool
	PreviousAvg float64
}

// Evaluate applies the spike rule to rows (most recent first, rows[0] being
// the reading just stored). Fewer than two rows never spike.
func Evaluate(rows []airquality.Measurement, current int) Result {
	if len(rows) < 2 {
		return Result{}
	}
	if len(rows) > window {
		rows = rows[:window]
	}

	var sum float64
	for _, r := range rows[1:] {
		sum += float64(r.AQI)
	}
	prev := sum / float64(len(rows)-1)

	return Result{
		Spike:       float64(current) > ratioThreshold*prev && current > floorAQI,
		PreviousAvg: prev,
	}
}

// Message renders the alert text for a spike.
func Message(prevAvg float64, current int) string {
	return fmt.Sprintf("AQI spiked from %d to %d", int(prevAvg), current)
}

// Detector checks freshly inserted readings and stores spike alerts.
type Detector struct {
	store  airquality.Store
	policy retry.Policy
}

type Option func(*Detector)

// WithRetry overrides the contention retry policy.
func WithRetry(p retry.Policy) Option {
	return func(d *Detector) { d.policy = p }
}

func New(store airquality.Store, opts ...Option) *Detector {
	d := &Detector{
		store: store,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Linear(500 * time.Millisecond),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.policy.Retryable = func(err error) bool {
		return errors.Is(err, airquality.ErrStorageContention)
	}
	return d
}

// Check evaluates the station's newest reading and records an alert when it
// spikes. Storage failures are logged and dropped; Check never fails the
// caller. It reports whether an alert was written.
func (d *Detector) Check(ctx context.Context, uid int, current int) bool {
	var raised bool
	err := retry.Do(ctx, d.policy, func(ctx context.Context) error {
		rows, err := d.store.History(ctx, uid, window)
		if err != nil {
			return err
		}

		res := Evaluate(rows, current)
		if !res.Spike {
			return nil
		}

		alert := airquality.Alert{
			StationUID: uid,
			Type:       airquality.AlertSpike,
			Message:    Message(res.PreviousAvg, current),
			AQIValue:   current,
		}
		if err := d.store.InsertAlert(ctx, alert); err != nil {
			return err
		}

		raised = true
		metrics.SpikeAlerts.WithLabelValues(strconv.Itoa(uid)).Inc()
		logger.Infof("spike: station %d: %s", uid, alert.Message)
		return nil
	})
	if err != nil {
		metrics.AlertsDropped.Inc()
		logger.Errorf("spike: station %d: check dropped: %v", uid, err)
		return false
	}
	return raised
}
