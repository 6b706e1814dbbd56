package metrics

import (
	"math"
	"sort"
	"time"

	"optionflow/internal/models"
)

// QuotePatternConfig contains configuration for market-maker classification.
type QuotePatternConfig struct {
	MinUpdates int // fewer updates are not classified

	StuffingFrequency    float64 // updates/sec above which quoting is stuffing
	WideningRecent       int     // most recent spreads compared
	WideningPrior        int     // spreads before those used as reference
	WideningRatio        float64 // recent mean / prior mean that counts as widening
	SymmetryThreshold    float64 // size symmetry below which inventory is being balanced
	AggressivePercentile float64 // mean spread below this percentile is aggressive

	// Sub-score normalizers
	FrequencyNorm   float64       // updates/sec that saturates the frequency score
	SpreadCVNorm    float64       // spread CV at which consistency reaches zero
	PersistenceNorm time.Duration // quote life at which persistence reaches zero

	FrequencyWeight   float64
	ConsistencyWeight float64
	SymmetryWeight    float64
	PersistenceWeight float64

	MMThreshold float64 // mm_probability above which quoting is a market maker
}

// DefaultQuotePatternConfig returns default configuration.
func DefaultQuotePatternConfig() *QuotePatternConfig {
	return &QuotePatternConfig{
		MinUpdates:           20,
		StuffingFrequency:    5.0,
		WideningRecent:       5,
		WideningPrior:        10,
		WideningRatio:        1.5,
		SymmetryThreshold:    0.5,
		AggressivePercentile: 10,
		FrequencyNorm:        2.0,
		SpreadCVNorm:         0.5,
		PersistenceNorm:      5 * time.Second,
		FrequencyWeight:      0.3,
		ConsistencyWeight:    0.3,
		SymmetryWeight:       0.2,
		PersistenceWeight:    0.2,
		MMThreshold:          0.7,
	}
}

// QuotePatternAnalyzer classifies quote sequences as market making or
// directional quoting. It is stateless.
type QuotePatternAnalyzer struct {
	config *QuotePatternConfig
}

// NewQuotePatternAnalyzer creates a new analyzer.
func NewQuotePatternAnalyzer(config *QuotePatternConfig) *QuotePatternAnalyzer {
	if config == nil {
		config = DefaultQuotePatternConfig()
	}
	return &QuotePatternAnalyzer{config: config}
}

// Analyze classifies updates for one series. It returns false when there are
// fewer than MinUpdates updates.
func (qa *QuotePatternAnalyzer) Analyze(updates []models.QuoteUpdate) (models.MarketMakingPattern, bool) {
	cfg := qa.config
	if len(updates) < cfg.MinUpdates || len(updates) == 0 {
		return models.MarketMakingPattern{}, false
	}

	sorted := make([]models.QuoteUpdate, len(updates))
	copy(sorted, updates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	ev := qa.evidence(sorted)
	spreads := make([]float64, len(sorted))
	for i, u := range sorted {
		spreads[i] = u.Spread
	}

	ev.FrequencyScore = math.Min(ev.UpdateFrequency/cfg.FrequencyNorm, 1)
	ev.ConsistencyScore = math.Max(0, 1-ev.SpreadCV/cfg.SpreadCVNorm)
	ev.SymmetryScore = ev.SizeSymmetry
	ev.PersistenceScore = 1 - math.Min(ev.AvgPersistenceSec/cfg.PersistenceNorm.Seconds(), 1)

	prob := cfg.FrequencyWeight*ev.FrequencyScore +
		cfg.ConsistencyWeight*ev.ConsistencyScore +
		cfg.SymmetryWeight*ev.SymmetryScore +
		cfg.PersistenceWeight*ev.PersistenceScore
	prob = math.Min(prob, 1)

	behavior, confidence := qa.classify(ev, spreads, prob)

	return models.MarketMakingPattern{
		Series:        sorted[len(sorted)-1].Series(),
		Behavior:      behavior,
		Confidence:    roundToDecimal(confidence, 4),
		MMProbability: roundToDecimal(prob, 4),
		IsMarketMaker: prob > cfg.MMThreshold,
		Evidence:      ev,
		AnalyzedAt:    sorted[len(sorted)-1].Timestamp,
	}, true
}

// classify applies the behavior rules in order; the first match wins.
func (qa *QuotePatternAnalyzer) classify(ev models.PatternEvidence, spreads []float64, prob float64) (models.MMBehavior, float64) {
	cfg := qa.config

	if ev.UpdateFrequency > cfg.StuffingFrequency {
		return models.BehaviorQuoteStuffing, clamp(ev.UpdateFrequency/(2*cfg.StuffingFrequency), 0.5, 1)
	}

	if ratio, ok := wideningRatio(spreads, cfg.WideningRecent, cfg.WideningPrior); ok && ratio > cfg.WideningRatio {
		return models.BehaviorSpreadWidening, clamp(ratio/(2*cfg.WideningRatio), 0.5, 1)
	}

	if ev.SizeSymmetry < cfg.SymmetryThreshold {
		return models.BehaviorInventoryBalancing, clamp(1-ev.SizeSymmetry, 0.5, 1)
	}

	if ev.MeanSpread < Percentile(spreads, cfg.AggressivePercentile) {
		return models.BehaviorAggressiveQuoting, 0.6
	}

	return models.BehaviorQuoteMaintenance, prob
}

func (qa *QuotePatternAnalyzer) evidence(sorted []models.QuoteUpdate) models.PatternEvidence {
	n := len(sorted)
	first, last := sorted[0].Timestamp, sorted[n-1].Timestamp

	duration := last.Sub(first).Seconds()
	frequency := float64(n) / math.Max(duration, 1)

	spreads := make([]float64, n)
	var bidSize, askSize float64
	for i, u := range sorted {
		spreads[i] = u.Spread
		bidSize += u.BidSize
		askSize += u.AskSize
	}
	bidSize /= float64(n)
	askSize /= float64(n)

	symmetry := 0.0
	if hi := math.Max(bidSize, askSize); hi > 0 {
		symmetry = math.Min(bidSize, askSize) / hi
	}

	return models.PatternEvidence{
		UpdateCount:       n,
		DurationSec:       duration,
		UpdateFrequency:   frequency,
		MeanSpread:        Mean(spreads),
		SpreadCV:          CoefficientOfVariation(spreads),
		SizeSymmetry:      symmetry,
		AvgPersistenceSec: avgPersistence(sorted),
	}
}

// avgPersistence is the mean gap between consecutive Modify/Cancel updates,
// falling back to all updates when fewer than two of those exist.
func avgPersistence(sorted []models.QuoteUpdate) float64 {
	var times []time.Time
	for _, u := range sorted {
		if u.Action == models.ActionModify || u.Action == models.ActionCancel {
			times = append(times, u.Timestamp)
		}
	}
	if len(times) < 2 {
		times = times[:0]
		for _, u := range sorted {
			times = append(times, u.Timestamp)
		}
	}
	if len(times) < 2 {
		return 0
	}
	return times[len(times)-1].Sub(times[0]).Seconds() / float64(len(times)-1)
}

// wideningRatio compares the mean of the last recent spreads with the mean
// of the prior spreads before them.
func wideningRatio(spreads []float64, recent, prior int) (float64, bool) {
	if recent <= 0 || prior <= 0 || len(spreads) < recent+prior {
		return 0, false
	}
	n := len(spreads)
	priorMean := Mean(spreads[n-recent-prior : n-recent])
	if priorMean <= 0 {
		return 0, false
	}
	return Mean(spreads[n-recent:]) / priorMean, true
}
