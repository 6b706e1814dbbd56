package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"optionflow/internal/models"
)

// PressureAccumulator collects the trades of one open window. It is not
// safe for concurrent use; the aggregator serializes access.
type PressureAccumulator struct {
	strike decimal.Decimal
	typ    models.ContractType
	start  time.Time
	end    time.Time

	buyVolume, sellVolume, neutralVolume int64
	buyCount, sellCount, neutralCount    int
	largeBuy, largeSell, largeNeutral    int

	spreadSum     float64
	spreadSamples int
}

// NewPressureAccumulator opens an accumulator for [start, end).
func NewPressureAccumulator(strike decimal.Decimal, typ models.ContractType, start, end time.Time) *PressureAccumulator {
	return &PressureAccumulator{strike: strike, typ: typ, start: start, end: end}
}

// End returns the exclusive window end.
func (a *PressureAccumulator) End() time.Time {
	return a.end
}

// AddTrade routes one trade by direction. Unknown direction counts as
// neutral volume. A trade is large when size >= largeSize and largeSize > 0.
func (a *PressureAccumulator) AddTrade(direction models.TradeDirection, size, largeSize int64) {
	large := largeSize > 0 && size >= largeSize

	switch direction {
	case models.DirectionBuy:
		a.buyVolume += size
		a.buyCount++
		if large {
			a.largeBuy++
		}
	case models.DirectionSell:
		a.sellVolume += size
		a.sellCount++
		if large {
			a.largeSell++
		}
	default:
		a.neutralVolume += size
		a.neutralCount++
		if large {
			a.largeNeutral++
		}
	}
}

// AddSpread samples the quoted spread at trade time.
func (a *PressureAccumulator) AddSpread(spread float64) {
	a.spreadSum += spread
	a.spreadSamples++
}

// Finalize computes the window's PressureMetrics.
func (a *PressureAccumulator) Finalize(at time.Time) models.PressureMetrics {
	ratio, net, score := FinalizePressure(a.buyVolume, a.sellVolume, a.neutralVolume)
	total := a.buyVolume + a.sellVolume + a.neutralVolume
	trades := a.buyCount + a.sellCount + a.neutralCount

	m := models.PressureMetrics{
		Strike:            a.strike,
		Type:              a.typ,
		WindowStart:       a.start,
		WindowEnd:         a.end,
		BuyVolume:         a.buyVolume,
		SellVolume:        a.sellVolume,
		NeutralVolume:     a.neutralVolume,
		TotalVolume:       total,
		BuyTradeCount:     a.buyCount,
		SellTradeCount:    a.sellCount,
		NeutralTradeCount: a.neutralCount,
		LargeBuyCount:     a.largeBuy,
		LargeSellCount:    a.largeSell,
		LargeNeutralCount: a.largeNeutral,
		BuyPressureRatio:  ratio,
		NetPressure:       net,
		PressureScore:     score,
		AvgBuySize:        average(a.buyVolume, a.buyCount),
		AvgSellSize:       average(a.sellVolume, a.sellCount),
		AvgTradeSize:      average(total, trades),
		SpreadSamples:     a.spreadSamples,
		FinalizedAt:       at,
	}
	if a.spreadSamples > 0 {
		m.AvgSpread = a.spreadSum / float64(a.spreadSamples)
	}
	return m
}

// FinalizePressure derives the pressure figures from directional volume.
// ratio is buy/(buy+sell), or 0.5 without directional volume. score is
// net/total, or 0 for an empty window.
func FinalizePressure(buy, sell, neutral int64) (ratio float64, net int64, score float64) {
	ratio = 0.5
	if buy+sell > 0 {
		ratio = float64(buy) / float64(buy+sell)
	}

	net = buy - sell
	if total := buy + sell + neutral; total > 0 {
		score = float64(net) / float64(total)
	}
	return ratio, net, score
}

func average(volume int64, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(volume) / float64(count)
}
