// Package aggregator groups classified trades into fixed time windows per
// (strike, type) and finalizes each window exactly once into PressureMetrics.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"optionflow/internal/cache"
	"optionflow/internal/instrumentation"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
)

// Config holds window settings.
type Config struct {
	Window         time.Duration // window length, divides the day evenly
	GracePeriod    time.Duration // how long past window end trades are still accepted
	LargeTradeSize int64         // trades at or above this size count as large
}

// DefaultConfig returns the default aggregator configuration.
func DefaultConfig() Config {
	return Config{
		Window:         5 * time.Minute,
		GracePeriod:    30 * time.Second,
		LargeTradeSize: 50,
	}
}

// Stats are aggregator counters.
type Stats struct {
	Open       int
	Finalized  uint64
	LateTrades uint64
}

// Aggregator owns the open windows. A window moves from open to finalized
// once its end plus the grace period has passed; it is never reopened.
// Each series keeps its own event-time watermark, so a feed that lags another
// series is not judged late against it. A trade only expires windows of its
// own series; Run (wall clock) and Flush finalize across series.
type Aggregator struct {
	cfg     Config
	clock   cache.Clock
	logger  *slog.Logger
	metrics *instrumentation.Metrics

	mu         sync.Mutex
	open       map[models.WindowKey]*metrics.PressureAccumulator
	finalized  map[models.WindowKey]time.Time // key -> window end, kept until its series watermark passes it
	watermarks map[models.SeriesKey]time.Time

	finalizedCount uint64
	lateCount      uint64
}

// New creates an Aggregator. A nil clock uses the system clock; metrics may be nil.
func New(cfg Config, clock cache.Clock, logger *slog.Logger, m *instrumentation.Metrics) *Aggregator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Aggregator{
		cfg:        cfg,
		clock:      clock,
		logger:     logger.With("component", "aggregator"),
		metrics:    m,
		open:       make(map[models.WindowKey]*metrics.PressureAccumulator),
		finalized:  make(map[models.WindowKey]time.Time),
		watermarks: make(map[models.SeriesKey]time.Time),
	}
}

// WindowStart floors t to a multiple of window in UTC.
func WindowStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}

// AggregateTrade first finalizes the windows of the trade's series that
// expired before its timestamp, then routes the trade into its window.
// Non-trade events return nil. Trades for windows that are already finalized
// or past their grace period under the series watermark are dropped and
// counted.
func (a *Aggregator) AggregateTrade(ev *models.ProcessedEvent) []models.PressureMetrics {
	if ev == nil || !ev.IsTrade() {
		return nil
	}

	ts := ev.Time()
	series := ev.Contract.Series()

	a.mu.Lock()
	defer a.mu.Unlock()

	watermark := a.watermarks[series]
	if ts.After(watermark) {
		watermark = ts
		a.watermarks[series] = ts
	}
	out := a.expireLocked(watermark, func(k models.WindowKey) bool { return k.Series == series })

	start := WindowStart(ts, a.cfg.Window)
	end := start.Add(a.cfg.Window)
	key := models.WindowKey{Series: series, Start: start.UnixNano()}

	_, done := a.finalized[key]
	if done || !end.Add(a.cfg.GracePeriod).After(watermark) {
		a.lateCount++
		if a.metrics != nil {
			a.metrics.RecordLateTrade()
		}
		a.logger.Debug("late_trade_dropped",
			"series", key.Series.String(),
			"window_start", start,
			"trade_time", ts,
			"watermark", watermark,
		)
		return out
	}

	acc, ok := a.open[key]
	if !ok {
		acc = metrics.NewPressureAccumulator(ev.Contract.Strike, ev.Contract.Type, start, end)
		a.open[key] = acc
	}
	acc.AddTrade(ev.Direction, ev.Size, a.cfg.LargeTradeSize)
	if spread, ok := ev.Quote.Spread(); ok {
		acc.AddSpread(spread.InexactFloat64())
	}

	if a.metrics != nil {
		a.metrics.SetOpenWindows(len(a.open))
	}
	return out
}

// Expire finalizes every open window whose end plus grace is at or before now.
func (a *Aggregator) Expire(now time.Time) []models.PressureMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expireLocked(now, nil)
}

// Flush finalizes all open windows regardless of time.
func (a *Aggregator) Flush() []models.PressureMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]models.WindowKey, 0, len(a.open))
	for k := range a.open {
		keys = append(keys, k)
	}
	return a.finalizeLocked(keys)
}

// Run finalizes expired windows every interval against the clock and hands
// non-empty batches to emit. It returns when ctx is done.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration, emit func([]models.PressureMetrics)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("expiry_loop_started", "interval_ms", interval.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("expiry_loop_stopped")
			return
		case <-ticker.C:
			if batch := a.Expire(a.clock.Now()); len(batch) > 0 {
				emit(batch)
			}
		}
	}
}

// Stats returns a snapshot of the counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{Open: len(a.open), Finalized: a.finalizedCount, LateTrades: a.lateCount}
}

// expireLocked finalizes open windows whose end plus grace is at or before
// now, limited to keys matching include when it is non-nil.
func (a *Aggregator) expireLocked(now time.Time, include func(models.WindowKey) bool) []models.PressureMetrics {
	var keys []models.WindowKey
	for k, acc := range a.open {
		if include != nil && !include(k) {
			continue
		}
		if !acc.End().Add(a.cfg.GracePeriod).After(now) {
			keys = append(keys, k)
		}
	}

	// finalized keys behind their series watermark are rejected by time alone
	for k, end := range a.finalized {
		if !end.Add(a.cfg.GracePeriod).After(a.watermarks[k.Series]) {
			delete(a.finalized, k)
		}
	}

	return a.finalizeLocked(keys)
}

func (a *Aggregator) finalizeLocked(keys []models.WindowKey) []models.PressureMetrics {
	if len(keys) == 0 {
		return nil
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Start != keys[j].Start {
			return keys[i].Start < keys[j].Start
		}
		return keys[i].Series.String() < keys[j].Series.String()
	})

	now := a.clock.Now()
	out := make([]models.PressureMetrics, 0, len(keys))
	for _, k := range keys {
		acc := a.open[k]
		m := acc.Finalize(now)
		out = append(out, m)

		delete(a.open, k)
		a.finalized[k] = acc.End()
		a.finalizedCount++

		if a.metrics != nil {
			a.metrics.RecordWindowFinalized(float64(now.Sub(m.WindowEnd).Milliseconds()))
		}
		a.logger.Debug("window_finalized",
			"series", k.Series.String(),
			"window_start", m.WindowStart,
			"total_volume", m.TotalVolume,
			"buy_pressure_ratio", m.BuyPressureRatio,
		)
	}

	if a.metrics != nil {
		a.metrics.SetOpenWindows(len(a.open))
	}
	return out
}
