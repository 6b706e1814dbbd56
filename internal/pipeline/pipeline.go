// Package pipeline connects event processing, window aggregation, baseline
// comparison and market-maker filtering into a running service.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionflow/internal/aggregator"
	"optionflow/internal/baseline"
	"optionflow/internal/cache"
	"optionflow/internal/instrumentation"
	"optionflow/internal/metrics"
	"optionflow/internal/models"
	"optionflow/internal/processor"
)

// Signal dispositions used for metrics.
const (
	DispositionEmitted    = "emitted"
	DispositionDiscounted = "discounted"
	DispositionSuppressed = "suppressed"
)

// Publisher receives every signal that is not suppressed.
type Publisher interface {
	Publish(ctx context.Context, sig *models.Signal) error
}

// Config holds pipeline settings.
type Config struct {
	MMParticipationCeiling float64       // participation above which a signal is discounted
	ExpiryInterval         time.Duration // cadence of wall-clock window expiry
	BaselineJobInterval    time.Duration // cadence of closing past days into baselines
	WindowBuffer           int           // finalized batches queued for the signal worker
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MMParticipationCeiling: 0.6,
		ExpiryInterval:         5 * time.Second,
		BaselineJobInterval:    time.Hour,
		WindowBuffer:           1024,
	}
}

// Deps are the components a Pipeline drives. Publisher may be nil.
type Deps struct {
	Processor  *processor.Processor
	Aggregator *aggregator.Aggregator
	Quality    *metrics.MarketQualityAssessor
	Detector   *metrics.AnomalyDetector
	Baselines  *baseline.Service
	Summarizer *baseline.Summarizer
	Signals    *SignalBook
	Publisher  Publisher
	Clock      cache.Clock
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// Pipeline is the hot path plus the signal worker behind it. Baseline I/O
// only happens on the worker and the baseline job, never in HandleEvent.
type Pipeline struct {
	cfg Config
	Deps

	logger  *slog.Logger
	windows chan []models.PressureMetrics
}

// New creates a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	def := DefaultConfig()
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = def.ExpiryInterval
	}
	if cfg.BaselineJobInterval <= 0 {
		cfg.BaselineJobInterval = def.BaselineJobInterval
	}
	if cfg.WindowBuffer <= 0 {
		cfg.WindowBuffer = def.WindowBuffer
	}
	if deps.Clock == nil {
		deps.Clock = cache.SystemClock{}
	}
	if deps.Signals == nil {
		deps.Signals = NewSignalBook()
	}
	if deps.Detector == nil {
		deps.Detector = metrics.NewAnomalyDetector(nil)
	}
	return &Pipeline{
		cfg:     cfg,
		Deps:    deps,
		logger:  deps.Logger.With("component", "pipeline"),
		windows: make(chan []models.PressureMetrics, cfg.WindowBuffer),
	}
}

// HandleEvent runs one raw event through the processor and aggregator.
// Finalized windows are queued for the signal worker; when the queue is
// full HandleEvent waits for room; once ctx is done the batch is handled inline.
func (p *Pipeline) HandleEvent(ctx context.Context, raw models.BookEvent) processor.Result {
	res := p.Processor.Process(raw)
	if !res.OK() || !res.Event.IsTrade() {
		return res
	}

	ev := res.Event
	if p.Quality != nil {
		p.Quality.RecordTrade(ev.Contract.Series(), ev.Price.InexactFloat64())
	}

	if finalized := p.Aggregator.AggregateTrade(ev); len(finalized) > 0 {
		p.enqueue(ctx, finalized)
	}
	return res
}

// Run starts the signal worker, the periodic window expiry and the daily
// baseline job. It returns once ctx is done and the worker has drained the
// queue.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Aggregator.Run(ctx, p.cfg.ExpiryInterval, func(batch []models.PressureMetrics) {
			p.enqueue(ctx, batch)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.runBaselineJob(ctx)
	}()

	p.logger.Info("pipeline_started",
		"expiry_interval_ms", p.cfg.ExpiryInterval.Milliseconds(),
		"mm_participation_ceiling", p.cfg.MMParticipationCeiling,
	)

	for {
		select {
		case batch := <-p.windows:
			p.HandleWindows(ctx, batch)
		case <-ctx.Done():
			wg.Wait()
			p.drainQueue()
			p.logger.Info("pipeline_stopped")
			return
		}
	}
}

// Flush finalizes every open window and runs the result through the signal
// path synchronously. Call it after Run has returned.
func (p *Pipeline) Flush(ctx context.Context) []models.Signal {
	p.drainQueue()
	return p.HandleWindows(ctx, p.Aggregator.Flush())
}

// PersistHistory writes every finalized window held by the summarizer,
// today's included, as historical points and updates the baselines they
// touch. Points are keyed by window, so repeated calls and restarts within
// a day never overwrite one another.
func (p *Pipeline) PersistHistory(ctx context.Context) {
	points := p.Summarizer.Drain()
	if len(points) == 0 {
		return
	}

	n, err := p.Baselines.Ingest(ctx, points)
	if err != nil {
		p.logger.Warn("baseline_update_failed", "points", len(points), "error", err)
		return
	}
	p.logger.Info("baselines_updated", "points", len(points), "baselines", n)
}

// HandleWindows turns finalized windows into signals: baseline lookup,
// anomaly check, market-maker filter, then signal book and publisher.
func (p *Pipeline) HandleWindows(ctx context.Context, batch []models.PressureMetrics) []models.Signal {
	out := make([]models.Signal, 0, len(batch))

	for _, m := range batch {
		series := m.Series()
		key := models.BaselineKey{Series: series, TimeBucket: p.Summarizer.Bucket(m.WindowStart)}

		anomaly := p.Detector.Check(p.Baselines.GetBaselineMetrics(ctx, key), m)

		sig := models.Signal{
			ID:          uuid.NewString(),
			Pressure:    m,
			Anomaly:     anomaly,
			TimeBucket:  key.TimeBucket,
			GeneratedAt: p.Clock.Now(),
		}
		if p.Quality != nil {
			sig.MMParticipationRate = p.Quality.ParticipationRate(series)
			if q, ok := p.Quality.Assess(series); ok {
				sig.Quality = &q
			}
		}
		sig.Discounted = sig.MMParticipationRate > p.cfg.MMParticipationCeiling
		sig.Suppressed = sig.Discounted && !anomaly.IsAnomalous

		p.Signals.Put(sig)
		p.record(sig)

		if !sig.Suppressed && p.Publisher != nil {
			if err := p.Publisher.Publish(ctx, &sig); err != nil {
				p.logger.Warn("signal_publish_failed", "signal_id", sig.ID, "series", series.String(), "error", err)
				if p.Metrics != nil {
					p.Metrics.RecordError("publisher", "publish")
				}
			}
		}

		p.Summarizer.Add(m)
		out = append(out, sig)
	}

	return out
}

func (p *Pipeline) record(sig models.Signal) {
	disposition := DispositionEmitted
	switch {
	case sig.Suppressed:
		disposition = DispositionSuppressed
	case sig.Discounted:
		disposition = DispositionDiscounted
	}

	if p.Metrics != nil {
		p.Metrics.RecordSignal(disposition)
		for _, f := range sig.Anomaly.Flags {
			p.Metrics.RecordAnomalyFlag(string(f))
		}
	}

	p.logger.Info("signal_generated",
		"signal_id", sig.ID,
		"series", sig.Series().String(),
		"window_start", sig.Pressure.WindowStart,
		"total_volume", sig.Pressure.TotalVolume,
		"buy_pressure_ratio", sig.Pressure.BuyPressureRatio,
		"baseline_status", sig.Anomaly.BaselineStatus,
		"is_anomalous", sig.Anomaly.IsAnomalous,
		"anomaly_score", sig.Anomaly.AnomalyScore,
		"mm_participation_rate", sig.MMParticipationRate,
		"disposition", disposition,
	)
}

func (p *Pipeline) enqueue(ctx context.Context, batch []models.PressureMetrics) {
	select {
	case p.windows <- batch:
	case <-ctx.Done():
		// the worker may be gone, handle the batch on the caller
		p.HandleWindows(context.Background(), batch)
	}
}

// drainQueue handles batches still queued, using a fresh context since the
// run context is already done.
func (p *Pipeline) drainQueue() {
	for {
		select {
		case batch := <-p.windows:
			p.HandleWindows(context.Background(), batch)
		default:
			return
		}
	}
}

func (p *Pipeline) runBaselineJob(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.BaselineJobInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PersistHistory(ctx)
		}
	}
}
