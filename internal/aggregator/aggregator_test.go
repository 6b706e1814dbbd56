package aggregator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/cache"
	"optionflow/internal/instrumentation"
	"optionflow/internal/models"
)

var day = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(hh, mm, ss int) time.Time {
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second)
}

func newTestAggregator(clock cache.Clock) *Aggregator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultConfig(), clock, logger, instrumentation.NewMetrics(prometheus.NewRegistry()))
}

func trade(ts time.Time, strike int64, typ models.ContractType, dir models.TradeDirection, size int64) *models.ProcessedEvent {
	return &models.ProcessedEvent{
		BookEvent: models.BookEvent{
			Timestamp: ts.UnixNano(),
			Action:    models.ActionTrade,
			Side:      models.SideTrade,
			Price:     decimal.RequireFromString("101.00"),
			Size:      size,
		},
		Contract: models.ContractKey{Root: "NQ", Strike: decimal.NewFromInt(strike), Type: typ, Expiry: "H5"},
		Quote: models.QuoteState{
			BidPrice: decimal.RequireFromString("100.50"),
			AskPrice: decimal.RequireFromString("101.00"),
			HasBid:   true,
			HasAsk:   true,
		},
		Direction: dir,
	}
}

func TestWindowStart(t *testing.T) {
	assert.Equal(t, at(14, 30, 0), WindowStart(at(14, 34, 59), 5*time.Minute))
	assert.Equal(t, at(14, 35, 0), WindowStart(at(14, 35, 0), 5*time.Minute))

	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, at(14, 30, 0), WindowStart(at(14, 32, 0).In(est), 5*time.Minute))
}

func TestStraddlingTradesLandInDifferentWindows(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	assert.Empty(t, agg.AggregateTrade(trade(at(14, 34, 30), 21000, models.Call, models.DirectionBuy, 3)))
	assert.Empty(t, agg.AggregateTrade(trade(at(14, 35, 30), 21000, models.Call, models.DirectionSell, 4)))

	out := agg.Flush()
	require.Len(t, out, 2)
	assert.Equal(t, at(14, 30, 0), out[0].WindowStart)
	assert.Equal(t, int64(3), out[0].BuyVolume)
	assert.Equal(t, at(14, 35, 0), out[1].WindowStart)
	assert.Equal(t, int64(4), out[1].SellVolume)
}

func TestWatermarkFinalizesAfterGrace(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Call, models.DirectionBuy, 5))

	// inside grace: window stays open
	assert.Empty(t, agg.AggregateTrade(trade(at(14, 35, 29), 21000, models.Call, models.DirectionSell, 1)))

	out := agg.AggregateTrade(trade(at(14, 35, 30), 21000, models.Call, models.DirectionSell, 1))
	require.Len(t, out, 1)
	m := out[0]
	assert.Equal(t, int64(5), m.BuyVolume)
	assert.Equal(t, int64(0), m.SellVolume)
	assert.Equal(t, 1.0, m.BuyPressureRatio)
	assert.InDelta(t, 0.5, m.AvgSpread, 1e-9)
	assert.Equal(t, at(14, 35, 0), m.WindowEnd)
	assert.NoError(t, models.ValidatePressureMetrics(m))
}

func TestTradeWithinGraceJoinsPreviousWindow(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	agg.AggregateTrade(trade(at(14, 35, 10), 21000, models.Call, models.DirectionBuy, 1))
	agg.AggregateTrade(trade(at(14, 34, 50), 21000, models.Call, models.DirectionBuy, 2))

	assert.Equal(t, uint64(0), agg.Stats().LateTrades)
	out := agg.Flush()
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].BuyVolume)
}

func TestLateTradesNeverReopenWindows(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Call, models.DirectionBuy, 5))
	require.Len(t, agg.AggregateTrade(trade(at(14, 40, 0), 21000, models.Call, models.DirectionBuy, 1)), 1)

	assert.Empty(t, agg.AggregateTrade(trade(at(14, 32, 0), 21000, models.Call, models.DirectionBuy, 7)))
	assert.Equal(t, uint64(1), agg.Stats().LateTrades)

	out := agg.Flush()
	require.Len(t, out, 1)
	assert.Equal(t, at(14, 40, 0), out[0].WindowStart)
}

func TestTradesDoNotExpireOtherSeries(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Put, models.DirectionBuy, 4))

	// the call feed running ahead leaves the put window open
	assert.Empty(t, agg.AggregateTrade(trade(at(14, 40, 0), 21000, models.Call, models.DirectionBuy, 1)))
	assert.Equal(t, 2, agg.Stats().Open)
}

func TestLaggingSeriesIsNotLate(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	// each series is in order; the put feed trails the call feed by 40s
	agg.AggregateTrade(trade(at(14, 35, 31), 21000, models.Call, models.DirectionBuy, 5))
	agg.AggregateTrade(trade(at(14, 34, 51), 21000, models.Put, models.DirectionSell, 7))
	agg.AggregateTrade(trade(at(14, 35, 40), 21000, models.Put, models.DirectionSell, 2))

	assert.Equal(t, uint64(0), agg.Stats().LateTrades)

	var routed int64
	for _, m := range agg.Flush() {
		routed += m.TotalVolume
	}
	assert.Equal(t, int64(14), routed)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	clock := cache.NewFakeClock(at(14, 33, 0))
	agg := newTestAggregator(clock)

	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Call, models.DirectionBuy, 5))
	require.Len(t, agg.Flush(), 1)

	assert.Empty(t, agg.Flush())
	assert.Empty(t, agg.Expire(at(23, 0, 0)))

	// the window is still inside its grace period but was flushed
	assert.Empty(t, agg.AggregateTrade(trade(at(14, 32, 0), 21000, models.Call, models.DirectionBuy, 1)))
	assert.Empty(t, agg.Flush())

	s := agg.Stats()
	assert.Equal(t, uint64(1), s.Finalized)
	assert.Equal(t, uint64(1), s.LateTrades)
	assert.Equal(t, 0, s.Open)
}

func TestVolumeConservedPerWindow(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(16, 0, 0)))

	directions := []models.TradeDirection{
		models.DirectionBuy, models.DirectionSell, models.DirectionNeutral, models.DirectionUnknown,
	}
	sums := map[time.Time]int64{}
	var finalized []models.PressureMetrics
	for i := 0; i < 200; i++ {
		ts := at(14, 30, 0).Add(time.Duration(i*7) * time.Second)
		size := int64(i%13 + 1)
		finalized = append(finalized, agg.AggregateTrade(trade(ts, 21000, models.Call, directions[i%len(directions)], size))...)
		sums[WindowStart(ts, 5*time.Minute)] += size
	}

	finalized = append(finalized, agg.Expire(at(16, 0, 0))...)
	finalized = append(finalized, agg.Flush()...)

	seen := map[time.Time]bool{}
	for _, m := range finalized {
		assert.False(t, seen[m.WindowStart], "window finalized twice")
		seen[m.WindowStart] = true
		assert.Equal(t, sums[m.WindowStart], m.TotalVolume)
		assert.Equal(t, m.TotalVolume, m.BuyVolume+m.SellVolume+m.NeutralVolume)
	}
	assert.Len(t, seen, len(sums))
}

func TestLargeTradesCountedPerSide(t *testing.T) {
	agg := newTestAggregator(cache.NewFakeClock(at(15, 0, 0)))

	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Call, models.DirectionBuy, 50))
	agg.AggregateTrade(trade(at(14, 31, 1), 21000, models.Call, models.DirectionSell, 49))
	agg.AggregateTrade(trade(at(14, 31, 2), 21000, models.Call, models.DirectionUnknown, 80))

	out := agg.Flush()
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].LargeBuyCount)
	assert.Equal(t, 0, out[0].LargeSellCount)
	assert.Equal(t, 1, out[0].LargeNeutralCount)
}

func TestNonTradeEventsIgnored(t *testing.T) {
	agg := newTestAggregator(nil)
	ev := trade(at(14, 31, 0), 21000, models.Call, "", 5)
	ev.Action = models.ActionAdd

	assert.Nil(t, agg.AggregateTrade(ev))
	assert.Nil(t, agg.AggregateTrade(nil))
	assert.Equal(t, 0, agg.Stats().Open)
}

func TestRunExpiresOnClock(t *testing.T) {
	clock := cache.NewFakeClock(at(14, 32, 0))
	agg := newTestAggregator(clock)
	agg.AggregateTrade(trade(at(14, 31, 0), 21000, models.Call, models.DirectionBuy, 5))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []models.PressureMetrics, 1)
	go agg.Run(ctx, 5*time.Millisecond, func(batch []models.PressureMetrics) { got <- batch })

	clock.Set(at(14, 36, 0))

	select {
	case batch := <-got:
		require.Len(t, batch, 1)
		assert.Equal(t, int64(5), batch[0].BuyVolume)
	case <-time.After(2 * time.Second):
		t.Fatal("window was not expired")
	}
}
