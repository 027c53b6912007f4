package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/logger"
	"github.com/i474232898/airwatch/internal/metrics"
)

// SpikeChecker is notified of every newly stored reading.
type SpikeChecker interface {
	Check(ctx context.Context, uid int, current int) bool
}

// batchInserter is implemented by stores that can insert a cycle's readings
// in one round trip.
type batchInserter interface {
	InsertBatch(ctx context.Context, ms []airquality.Measurement) ([]bool, error)
}

// CycleReport summarises one ingestion cycle.
type CycleReport struct {
	ID       uuid.UUID     `json:"id"`
	Polled   int           `json:"polled"`
	Accepted int           `json:"accepted"`
	Inserted int           `json:"inserted"`
	Failed   int           `json:"failed"`
	Alerts   int           `json:"alerts"`
	Duration time.Duration `json:"duration"`
}

// Scheduler periodically polls every configured station and commits the
// accepted readings.
type Scheduler struct {
	scheduler *gocron.Scheduler
	stations  []airquality.Station
	source    airquality.StationSource
	store     airquality.Store
	detector  SpikeChecker

	interval     time.Duration
	fetchTimeout time.Duration
	workers      int

	mu     sync.Mutex
	cancel context.CancelFunc
	last   CycleReport
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.fetchTimeout = d }
}

func WithWorkers(n int) Option {
	return func(s *Scheduler) { s.workers = n }
}

// New creates a new Scheduler. detector may be nil.
func New(stations []airquality.Station, source airquality.StationSource, store airquality.Store, detector SpikeChecker, opts ...Option) *Scheduler {
	s := &Scheduler{
		scheduler:    gocron.NewScheduler(time.Local),
		stations:     stations,
		source:       source,
		store:        store,
		detector:     detector,
		interval:     5 * time.Minute,
		fetchTimeout: 15 * time.Second,
		workers:      10,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers <= 0 {
		s.workers = 1
	}
	if s.interval <= 0 {
		s.interval = 5 * time.Minute
	}
	return s
}

// Start runs the first cycle immediately. Each later cycle starts one full
// interval after the previous one finished, so a slow cycle never shortens
// the idle gap and cycles never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.stations) == 0 {
		logger.Warnf("scheduler: no stations configured; nothing to schedule")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.arm(runCtx, time.Time{}); err != nil {
		cancel()
		return err
	}

	logger.Infof("scheduler: polling %d stations, %s between cycles", len(s.stations), s.interval)
	s.scheduler.StartAsync()
	return nil
}

// arm registers a one-shot cycle job at the given time (zero = now).
func (s *Scheduler) arm(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}

	job := s.scheduler.Every(s.interval).LimitRunsTo(1)
	if !at.IsZero() {
		job = job.StartAt(at)
	}
	if _, err := job.Do(func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("schedule ingestion job: %w", err)
	}
	return nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		logger.Errorf("scheduler: cycle aborted: %v", err)
	}
	next := time.Now().Add(s.interval)
	if err := s.arm(ctx, next); err != nil {
		logger.Errorf("scheduler: %v", err)
		return
	}
	logger.Debugf("scheduler: next cycle at %s", next.Format(time.TimeOnly))
}

// Stop stops the scheduler and cancels any in-flight cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// LastReport returns the report of the most recently finished cycle.
func (s *Scheduler) LastReport() CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// RunCycle polls all stations concurrently, waits for every fetch and then
// commits the accepted readings in station order. A fetch failure only costs
// that station's reading. The returned error is non-nil when storage became
// unavailable and the remaining writes were abandoned.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	report := CycleReport{ID: uuid.New(), Polled: len(s.stations)}
	logger.Debugf("scheduler[%s]: cycle started", report.ID)

	readings := s.fetchAll(ctx, report.ID)

	accepted := make([]airquality.Measurement, 0, len(readings))
	for _, r := range readings {
		if r != nil {
			accepted = append(accepted, *r)
		}
	}
	report.Accepted = len(accepted)
	report.Failed = report.Polled - report.Accepted

	err := s.commit(ctx, accepted, &report)

	report.Duration = time.Since(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	logger.Infof("scheduler[%s]: polled=%d accepted=%d inserted=%d failed=%d alerts=%d in %s",
		report.ID, report.Polled, report.Accepted, report.Inserted, report.Failed, report.Alerts,
		report.Duration.Round(time.Millisecond))
	return report, err
}

func (s *Scheduler) fetchAll(ctx context.Context, cycleID uuid.UUID) []*airquality.Measurement {
	results := make([]*airquality.Measurement, len(s.stations))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, st := range s.stations {
		i, st := i, st
		g.Go(func() error {
			metrics.StationsPolled.Inc()

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			m, err := s.source.FetchReading(fetchCtx, st)
			if err != nil {
				reason := "fetch"
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
					reason = "timeout"
				}
				metrics.FetchFailures.WithLabelValues(reason).Inc()
				logger.Warnf("scheduler[%s]: station %d (%s): %v", cycleID, st.UID, st.Name, err)
				return nil
			}
			m.StationUID = st.UID
			results[i] = &m
			return nil
		})
	}
	// Goroutines never return errors; failures are per station.
	_ = g.Wait()
	return results
}

func (s *Scheduler) commit(ctx context.Context, readings []airquality.Measurement, report *CycleReport) error {
	if len(readings) == 0 {
		return nil
	}

	// Each station contributes at most one reading per cycle, so checking the
	// batch's new rows afterwards sees the same history as checking inline.
	if bi, ok := s.store.(batchInserter); ok {
		inserted, err := bi.InsertBatch(ctx, readings)
		for i, ok := range inserted {
			if ok {
				s.afterInsert(ctx, readings[i], report)
			} else if err == nil {
				metrics.ReadingsDuplicate.Inc()
			}
		}
		if err != nil {
			return s.commitError(err, report)
		}
		return nil
	}

	for _, m := range readings {
		inserted, err := s.store.InsertIfAbsent(ctx, m)
		if err != nil {
			if errors.Is(err, airquality.ErrStorageUnavailable) || ctx.Err() != nil {
				return s.commitError(err, report)
			}
			logger.Warnf("scheduler[%s]: station %d: insert skipped: %v", report.ID, m.StationUID, err)
			continue
		}
		if !inserted {
			metrics.ReadingsDuplicate.Inc()
			continue
		}
		s.afterInsert(ctx, m, report)
	}
	return nil
}

func (s *Scheduler) afterInsert(ctx context.Context, m airquality.Measurement, report *CycleReport) {
	report.Inserted++
	metrics.ReadingsInserted.Inc()
	if s.detector != nil && s.detector.Check(ctx, m.StationUID, m.AQI) {
		report.Alerts++
	}
}

func (s *Scheduler) commitError(err error, report *CycleReport) error {
	logger.Errorf("scheduler[%s]: storage failure, abandoning remaining writes: %v", report.ID, err)
	return fmt.Errorf("commit cycle %s: %w", report.ID, err)
}
