package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/models"
)

func TestAssessorParticipationFromBatches(t *testing.T) {
	qa := NewMarketQualityAssessor(nil, nil)
	for _, q := range quoteStream(40, 200*time.Millisecond, 10, 10, jitteredSpread()) {
		qa.RecordQuote(q)
	}

	key := models.NewSeriesKey(decimal.NewFromInt(21000), models.Call)
	assert.Equal(t, 1.0, qa.ParticipationRate(key))

	p, ok := qa.LastPattern(key)
	require.True(t, ok)
	assert.True(t, p.IsMarketMaker)

	m, ok := qa.Assess(key)
	require.True(t, ok)
	assert.Equal(t, 40, m.QuoteCount)
	assert.Equal(t, 2, m.BatchCount)
	assert.Equal(t, 1.0, m.MMParticipationRate)
	assert.InDelta(t, 0.05, m.AvgSpread, 1e-6)
	assert.InDelta(t, 20.0, m.AvgDepth, 1e-9)
	assert.Equal(t, models.RegimeLow, m.VolatilityRegime)
	assert.Greater(t, m.LiquidityScore, 90.0)
	assert.Greater(t, m.StabilityScore, 90.0)
	assert.InDelta(t, m.AvgSpread, m.EffectiveSpread, 1e-9)
}

func TestAssessorSlowQuotingHasNoParticipation(t *testing.T) {
	qa := NewMarketQualityAssessor(nil, nil)
	for _, q := range quoteStream(20, time.Second, 10, 25, jitteredSpread()) {
		qa.RecordQuote(q)
	}

	key := models.NewSeriesKey(decimal.NewFromInt(21000), models.Call)
	assert.Equal(t, 0.0, qa.ParticipationRate(key))

	m, ok := qa.Assess(key)
	require.True(t, ok)
	assert.Equal(t, 1, m.BatchCount)
	assert.Equal(t, 0.0, m.MMParticipationRate)
}

func TestAssessorEffectiveSpread(t *testing.T) {
	qa := NewMarketQualityAssessor(nil, nil)
	key := models.NewSeriesKey(decimal.NewFromInt(21000), models.Call)

	// no quotes yet
	qa.RecordTrade(key, 10.05)
	_, ok := qa.Assess(key)
	assert.False(t, ok)

	for _, q := range quoteStream(2, time.Second, 10, 10, func(int) float64 { return 0.10 }) {
		qa.RecordQuote(q)
	}
	qa.RecordTrade(key, 10.10)

	m, ok := qa.Assess(key)
	require.True(t, ok)
	assert.InDelta(t, 0.10, m.EffectiveSpread, 1e-9)
	assert.Equal(t, 0, m.BatchCount)
}

func TestAssessorHighRegime(t *testing.T) {
	qa := NewMarketQualityAssessor(nil, nil)
	for _, q := range quoteStream(10, time.Second, 5, 5, func(i int) float64 {
		if i%2 == 0 {
			return 0.01
		}
		return 0.20
	}) {
		qa.RecordQuote(q)
	}

	m, ok := qa.Assess(models.NewSeriesKey(decimal.NewFromInt(21000), models.Call))
	require.True(t, ok)
	assert.Equal(t, models.RegimeHigh, m.VolatilityRegime)
	assert.Len(t, qa.Keys(), 1)
}
