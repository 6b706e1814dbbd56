package metrics

import (
	"math"
	"sync"
	"time"

	"optionflow/internal/models"
)

// QualityConfig contains configuration for market quality assessment.
type QualityConfig struct {
	ClassificationWindow time.Duration // quotes considered per batch classification
	BatchSize            int           // quotes between batch classifications
	MaxQuotes            int           // quotes kept per series for quality stats
	MaxBatches           int           // classifications kept for participation rate
	MaxTrades            int           // effective spread samples kept per series

	MaxRelativeSpread float64 // relative spread at which liquidity reaches zero
	LowRegimeCV       float64
	NormalRegimeCV    float64
}

// DefaultQualityConfig returns default configuration.
func DefaultQualityConfig() *QualityConfig {
	return &QualityConfig{
		ClassificationWindow: 30 * time.Second,
		BatchSize:            20,
		MaxQuotes:            500,
		MaxBatches:           50,
		MaxTrades:            500,
		MaxRelativeSpread:    0.10,
		LowRegimeCV:          0.2,
		NormalRegimeCV:       0.5,
	}
}

type seriesQuality struct {
	quotes      []models.QuoteUpdate
	sinceBatch  int
	batches     []bool
	effective   []float64
	lastPattern *models.MarketMakingPattern
}

// MarketQualityAssessor keeps rolling quote activity per (strike, type) and
// periodically classifies quote batches as market making.
type MarketQualityAssessor struct {
	config   *QualityConfig
	analyzer *QuotePatternAnalyzer

	mu     sync.Mutex
	series map[models.SeriesKey]*seriesQuality
}

// NewMarketQualityAssessor creates an assessor. A nil analyzer uses defaults.
func NewMarketQualityAssessor(config *QualityConfig, analyzer *QuotePatternAnalyzer) *MarketQualityAssessor {
	if config == nil {
		config = DefaultQualityConfig()
	}
	if analyzer == nil {
		analyzer = NewQuotePatternAnalyzer(nil)
	}
	return &MarketQualityAssessor{
		config:   config,
		analyzer: analyzer,
		series:   make(map[models.SeriesKey]*seriesQuality),
	}
}

// RecordQuote adds a top-of-book update. Every BatchSize quotes the recent
// ones are classified and the result joins the participation ring.
func (qa *MarketQualityAssessor) RecordQuote(q models.QuoteUpdate) {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	s := qa.stateLocked(q.Series())
	s.quotes = append(s.quotes, q)
	if len(s.quotes) > qa.config.MaxQuotes {
		s.quotes = s.quotes[len(s.quotes)-qa.config.MaxQuotes:]
	}

	s.sinceBatch++
	if s.sinceBatch < qa.config.BatchSize {
		return
	}
	s.sinceBatch = 0

	cutoff := q.Timestamp.Add(-qa.config.ClassificationWindow)
	start := len(s.quotes)
	for start > 0 && !s.quotes[start-1].Timestamp.Before(cutoff) {
		start--
	}

	pattern, ok := qa.analyzer.Analyze(s.quotes[start:])
	if !ok {
		return
	}
	s.lastPattern = &pattern
	s.batches = append(s.batches, pattern.IsMarketMaker)
	if len(s.batches) > qa.config.MaxBatches {
		s.batches = s.batches[len(s.batches)-qa.config.MaxBatches:]
	}
}

// RecordTrade samples the effective spread 2·|price − mid| against the
// latest quote of the series. Trades before any quote are ignored.
func (qa *MarketQualityAssessor) RecordTrade(key models.SeriesKey, price float64) {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	s, ok := qa.series[key]
	if !ok || len(s.quotes) == 0 {
		return
	}
	mid := s.quotes[len(s.quotes)-1].MidPrice
	s.effective = append(s.effective, 2*math.Abs(price-mid))
	if len(s.effective) > qa.config.MaxTrades {
		s.effective = s.effective[len(s.effective)-qa.config.MaxTrades:]
	}
}

// ParticipationRate is the fraction of recent batches classified as market
// making, or 0 when none were classified.
func (qa *MarketQualityAssessor) ParticipationRate(key models.SeriesKey) float64 {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	if s, ok := qa.series[key]; ok {
		return participation(s.batches)
	}
	return 0
}

// LastPattern returns the most recent batch classification.
func (qa *MarketQualityAssessor) LastPattern(key models.SeriesKey) (models.MarketMakingPattern, bool) {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	s, ok := qa.series[key]
	if !ok || s.lastPattern == nil {
		return models.MarketMakingPattern{}, false
	}
	return *s.lastPattern, true
}

// Assess summarises the recent quotes of a series. It returns false when
// no quotes were recorded.
func (qa *MarketQualityAssessor) Assess(key models.SeriesKey) (models.MarketQualityMetrics, bool) {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	s, ok := qa.series[key]
	if !ok || len(s.quotes) == 0 {
		return models.MarketQualityMetrics{}, false
	}

	n := len(s.quotes)
	spreads := make([]float64, n)
	mids := make([]float64, n)
	depths := make([]float64, n)
	for i, q := range s.quotes {
		spreads[i] = q.Spread
		mids[i] = q.MidPrice
		depths[i] = q.BidSize + q.AskSize
	}

	avgSpread := Mean(spreads)
	effective := avgSpread
	if len(s.effective) > 0 {
		effective = Mean(s.effective)
	}

	liquidity := 0.0
	if meanMid := Mean(mids); meanMid > 0 {
		liquidity = 100 * math.Max(0, 1-(avgSpread/meanMid)/qa.config.MaxRelativeSpread)
	}

	cv := CoefficientOfVariation(spreads)

	return models.MarketQualityMetrics{
		Series:              key,
		AvgSpread:           roundToDecimal(avgSpread, 6),
		EffectiveSpread:     roundToDecimal(effective, 6),
		AvgDepth:            roundToDecimal(Mean(depths), 4),
		MMParticipationRate: participation(s.batches),
		LiquidityScore:      roundToDecimal(liquidity, 2),
		StabilityScore:      roundToDecimal(100*math.Max(0, 1-cv), 2),
		EfficiencyScore:     roundToDecimal(efficiency(mids), 2),
		VolatilityRegime:    qa.regime(cv),
		QuoteCount:          n,
		BatchCount:          len(s.batches),
		AssessedAt:          s.quotes[n-1].Timestamp,
	}, true
}

// Keys returns every series with recorded quotes.
func (qa *MarketQualityAssessor) Keys() []models.SeriesKey {
	qa.mu.Lock()
	defer qa.mu.Unlock()

	keys := make([]models.SeriesKey, 0, len(qa.series))
	for k := range qa.series {
		keys = append(keys, k)
	}
	return keys
}

func (qa *MarketQualityAssessor) regime(cv float64) models.VolatilityRegime {
	switch {
	case cv < qa.config.LowRegimeCV:
		return models.RegimeLow
	case cv < qa.config.NormalRegimeCV:
		return models.RegimeNormal
	default:
		return models.RegimeHigh
	}
}

func (qa *MarketQualityAssessor) stateLocked(key models.SeriesKey) *seriesQuality {
	s, ok := qa.series[key]
	if !ok {
		s = &seriesQuality{}
		qa.series[key] = s
	}
	return s
}

func participation(batches []bool) float64 {
	if len(batches) == 0 {
		return 0
	}
	mm := 0
	for _, b := range batches {
		if b {
			mm++
		}
	}
	return float64(mm) / float64(len(batches))
}

// efficiency maps the lag-1 autocorrelation of mid-price returns to 0-100;
// uncorrelated returns score 100.
func efficiency(mids []float64) float64 {
	returns := make([]float64, 0, len(mids))
	for i := 1; i < len(mids); i++ {
		if mids[i-1] > 0 {
			returns = append(returns, (mids[i]-mids[i-1])/mids[i-1])
		}
	}
	return 100 * clamp(1-math.Abs(Lag1Autocorrelation(returns)), 0, 1)
}
