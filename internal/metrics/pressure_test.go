package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"optionflow/internal/models"
)

func TestFinalizePressure(t *testing.T) {
	ratio, net, score := FinalizePressure(0, 0, 0)
	assert.Equal(t, 0.5, ratio)
	assert.Equal(t, int64(0), net)
	assert.Equal(t, 0.0, score)

	ratio, net, score = FinalizePressure(30, 10, 10)
	assert.InDelta(t, 0.75, ratio, 1e-9)
	assert.Equal(t, int64(20), net)
	assert.InDelta(t, 0.4, score, 1e-9)

	ratio, _, score = FinalizePressure(0, 0, 7)
	assert.Equal(t, 0.5, ratio)
	assert.Equal(t, 0.0, score)
}

func TestPressureAccumulator(t *testing.T) {
	start := time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
	acc := NewPressureAccumulator(decimal.NewFromInt(21000), models.Call, start, start.Add(5*time.Minute))

	acc.AddTrade(models.DirectionBuy, 5, 50)
	acc.AddTrade(models.DirectionBuy, 60, 50)
	acc.AddTrade(models.DirectionSell, 10, 50)
	acc.AddTrade(models.DirectionNeutral, 4, 50)
	acc.AddTrade(models.DirectionUnknown, 6, 50)
	acc.AddSpread(0.5)
	acc.AddSpread(0.3)

	m := acc.Finalize(start.Add(6 * time.Minute))

	assert.Equal(t, int64(65), m.BuyVolume)
	assert.Equal(t, int64(10), m.SellVolume)
	assert.Equal(t, int64(10), m.NeutralVolume)
	assert.Equal(t, m.BuyVolume+m.SellVolume+m.NeutralVolume, m.TotalVolume)
	assert.Equal(t, 2, m.NeutralTradeCount)
	assert.Equal(t, 1, m.LargeBuyCount)
	assert.Equal(t, 1, m.LargeTradeCount())
	assert.Equal(t, 5, m.TradeCount())
	assert.InDelta(t, 32.5, m.AvgBuySize, 1e-9)
	assert.InDelta(t, 10.0, m.AvgSellSize, 1e-9)
	assert.InDelta(t, 17.0, m.AvgTradeSize, 1e-9)
	assert.InDelta(t, 0.4, m.AvgSpread, 1e-9)
	assert.Equal(t, int64(55), m.NetPressure)
	assert.NoError(t, models.ValidatePressureMetrics(m))
}
