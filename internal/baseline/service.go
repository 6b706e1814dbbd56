package baseline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"optionflow/internal/cache"
	"optionflow/internal/instrumentation"
	"optionflow/internal/models"
)

// ServiceConfig holds baseline settings.
type ServiceConfig struct {
	LookbackDays    int
	MinSamples      int
	CacheTTL        time.Duration
	CacheMaxEntries int // zero means unbounded
}

// DefaultServiceConfig returns the default baseline configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		LookbackDays: 20,
		MinSamples:   5,
		CacheTTL:     6 * time.Hour,
	}
}

// Service fronts a Store with a TTL cache of baselines. Store failures are
// logged and the service keeps working from memory.
type Service struct {
	cfg     ServiceConfig
	store   Store
	cache   cache.Cache[models.BaselineKey, *models.BaselineMetrics]
	clock   cache.Clock
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewService creates a Service. A nil clock uses the system clock; metrics may be nil.
func NewService(cfg ServiceConfig, store Store, clock cache.Clock, logger *slog.Logger, m *instrumentation.Metrics) *Service {
	def := DefaultServiceConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Service{
		cfg:   cfg,
		store: store,
		cache: cache.New[models.BaselineKey, *models.BaselineMetrics](cache.Options[models.BaselineKey]{
			TTL:        cfg.CacheTTL,
			MaxEntries: cfg.CacheMaxEntries,
			Clock:      clock,
		}),
		clock:   clock,
		logger:  logger.With("component", "baseline"),
		metrics: m,
	}
}

// StoreHistoricalData persists points.
func (s *Service) StoreHistoricalData(ctx context.Context, points []models.HistoricalDataPoint) error {
	if err := s.store.StoreHistoricalData(ctx, points); err != nil {
		s.recordError("store_write")
		return err
	}
	return nil
}

// GetHistoricalData returns the points of key within the lookback window
// ending at asOf.
func (s *Service) GetHistoricalData(ctx context.Context, key models.BaselineKey, asOf time.Time) ([]models.HistoricalDataPoint, error) {
	return s.store.GetHistoricalData(ctx, key, s.cfg.LookbackDays, asOf)
}

// GetBaselineMetrics returns the baseline for key, or nil when none exists.
// Absence is cached like a baseline; read errors are not.
func (s *Service) GetBaselineMetrics(ctx context.Context, key models.BaselineKey) *models.BaselineMetrics {
	if b, ok := s.cache.Get(key); ok {
		s.recordLookup("hit")
		return b
	}

	b, err := s.store.GetBaselineMetrics(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		s.recordLookup("absent")
		s.cache.Set(key, nil)
		return nil
	case err != nil:
		s.recordLookup("error")
		s.recordError("store_read")
		s.logger.Warn("baseline_read_failed",
			"series", key.Series.String(),
			"time_bucket", key.TimeBucket,
			"error", err,
		)
		return nil
	}

	s.recordLookup("miss")
	s.cache.Set(key, b)
	return b
}

// UpdateBaselinesIncremental recomputes the baseline of every key touched
// by points from the stored history ending at the latest point date. Keys
// with too few samples get no baseline. It returns the number of baselines
// computed.
func (s *Service) UpdateBaselinesIncremental(ctx context.Context, points []models.HistoricalDataPoint) (int, error) {
	latest := map[models.BaselineKey]string{}
	for _, p := range points {
		k := p.Key()
		if p.Date > latest[k] {
			latest[k] = p.Date
		}
	}

	keys := make([]models.BaselineKey, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Series != keys[j].Series {
			return keys[i].Series.String() < keys[j].Series.String()
		}
		return keys[i].TimeBucket < keys[j].TimeBucket
	})

	var firstErr error
	computed := 0
	for _, k := range keys {
		asOf, err := time.Parse(models.DateLayout, latest[k])
		if err != nil {
			s.logger.Warn("invalid_point_date", "date", latest[k], "error", err)
			continue
		}

		history, err := s.store.GetHistoricalData(ctx, k, s.cfg.LookbackDays, asOf)
		if err != nil {
			s.recordError("store_read")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		b, ok := ComputeBaseline(k, history, s.cfg.LookbackDays, s.cfg.MinSamples, s.clock.Now())
		if !ok {
			s.logger.Debug("baseline_insufficient_samples",
				"series", k.Series.String(),
				"time_bucket", k.TimeBucket,
				"samples", len(history),
			)
			continue
		}

		// the cache serves the new baseline even when the write fails
		s.cache.Set(k, b)
		computed++

		if err := s.store.StoreBaselineMetrics(ctx, *b); err != nil {
			s.recordError("store_write")
			s.logger.Warn("baseline_write_failed",
				"series", k.Series.String(),
				"time_bucket", k.TimeBucket,
				"error", err,
			)
		}
	}

	return computed, firstErr
}

// Ingest stores points and updates the baselines they touch.
func (s *Service) Ingest(ctx context.Context, points []models.HistoricalDataPoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	if err := s.StoreHistoricalData(ctx, points); err != nil {
		return 0, err
	}
	return s.UpdateBaselinesIncremental(ctx, points)
}

func (s *Service) recordLookup(result string) {
	if s.metrics != nil {
		s.metrics.RecordBaselineLookup(result)
	}
}

func (s *Service) recordError(errorType string) {
	if s.metrics != nil {
		s.metrics.RecordError("baseline", errorType)
	}
}
