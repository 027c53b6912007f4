package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/airwatch/internal/airquality"
	"github.com/i474232898/airwatch/internal/common"
)

// MemoryStore is a concurrency-safe in-memory measurement store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station uid, value: measurements ordered by ascending timestamp
	data   map[int][]airquality.Measurement
	alerts []airquality.Alert
	nextID int64

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. Rows are kept for the life of
// the process.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[int][]airquality.Measurement),
		now:  time.Now,
	}
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, m airquality.Measurement) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[m.StationUID]
	i := sort.Search(len(history), func(i int) bool {
		return !history[i].Timestamp.Before(m.Timestamp)
	})
	if i < len(history) && history[i].Timestamp.Equal(m.Timestamp) {
		return false, nil
	}

	history = append(history, airquality.Measurement{})
	copy(history[i+1:], history[i:])
	history[i] = m
	s.data[m.StationUID] = history
	return true, nil
}

func (s *MemoryStore) LatestPerStation(_ context.Context) (map[int]airquality.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]airquality.Measurement, len(s.data))
	for uid, history := range s.data {
		if len(history) > 0 {
			out[uid] = history[len(history)-1]
		}
	}
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, uid int, limit int) ([]airquality.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[uid]
	n := len(history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]airquality.Measurement, 0, n)
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *MemoryStore) InsertAlert(_ context.Context, a airquality.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a.ID = s.nextID
	a.CreatedAt = s.now().UTC().Truncate(time.Second)
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryStore) RecentAlerts(_ context.Context, limit int) ([]airquality.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]airquality.Alert, 0, len(s.alerts))
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.alerts[i])
	}
	return out, nil
}

func (s *MemoryStore) HourlyTrend(_ context.Context, since time.Time) ([]airquality.HourlyAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sums [24]float64
	var counts [24]int
	for _, history := range s.data {
		for _, m := range history {
			if m.Timestamp.Before(since) {
				continue
			}
			h := m.Timestamp.Hour()
			sums[h] += float64(m.AQI)
			counts[h]++
		}
	}
	return collectHourly(sums, counts), nil
}

func (s *MemoryStore) Close() error { return nil }

func collectHourly(sums [24]float64, counts [24]int) []airquality.HourlyAverage {
	var out []airquality.HourlyAverage
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		out = append(out, airquality.HourlyAverage{
			Hour:    h,
			AvgAQI:  common.Round(sums[h]/float64(counts[h]), 1),
			Samples: counts[h],
		})
	}
	return out
}
