package baseline

import (
	"context"
	"sort"
	"sync"
	"time"

	"optionflow/internal/models"
)

type pointKey struct {
	date   string
	key    models.BaselineKey
	window string
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	points    map[pointKey]models.HistoricalDataPoint
	baselines map[models.BaselineKey]models.BaselineMetrics
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points:    make(map[pointKey]models.HistoricalDataPoint),
		baselines: make(map[models.BaselineKey]models.BaselineMetrics),
	}
}

func (s *MemoryStore) StoreHistoricalData(_ context.Context, points []models.HistoricalDataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[pointKey{date: p.Date, key: p.Key(), window: p.Window}] = p
	}
	return nil
}

func (s *MemoryStore) GetHistoricalData(_ context.Context, key models.BaselineKey, lookbackDays int, asOf time.Time) ([]models.HistoricalDataPoint, error) {
	from, to := lookbackRange(lookbackDays, asOf)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.HistoricalDataPoint
	for pk, p := range s.points {
		if pk.key == key && pk.date >= from && pk.date <= to {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Window < out[j].Window
	})
	return out, nil
}

func (s *MemoryStore) StoreBaselineMetrics(_ context.Context, m models.BaselineMetrics) error {
	s.mu.Lock()
	s.baselines[m.Key] = m
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetBaselineMetrics(_ context.Context, key models.BaselineKey) (*models.BaselineMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.baselines[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (s *MemoryStore) Close() error { return nil }
