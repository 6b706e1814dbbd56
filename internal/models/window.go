package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WindowKey identifies one aggregation window. Start is UTC nanoseconds so the
// key stays comparable.
type WindowKey struct {
	Series SeriesKey
	Start  int64
}

// StartTime returns the window start in UTC.
func (k WindowKey) StartTime() time.Time {
	return time.Unix(0, k.Start).UTC()
}

// PressureMetrics is the immutable result of finalizing a window.
// BuyVolume + SellVolume + NeutralVolume == TotalVolume.
type PressureMetrics struct {
	Strike      decimal.Decimal `json:"strike"`
	Type        ContractType    `json:"contract_type"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`

	BuyVolume     int64 `json:"buy_volume"`
	SellVolume    int64 `json:"sell_volume"`
	NeutralVolume int64 `json:"neutral_volume"`
	TotalVolume   int64 `json:"total_volume"`

	BuyTradeCount     int `json:"buy_trade_count"`
	SellTradeCount    int `json:"sell_trade_count"`
	NeutralTradeCount int `json:"neutral_trade_count"`
	LargeBuyCount     int `json:"large_buy_count"`
	LargeSellCount    int `json:"large_sell_count"`
	LargeNeutralCount int `json:"large_neutral_count"`

	BuyPressureRatio float64 `json:"buy_pressure_ratio"` // buy/(buy+sell), 0.5 when no directional volume
	NetPressure      int64   `json:"net_pressure"`       // buy - sell
	PressureScore    float64 `json:"pressure_score"`     // net/total, in [-1, 1]

	AvgBuySize    float64 `json:"avg_buy_size"`
	AvgSellSize   float64 `json:"avg_sell_size"`
	AvgTradeSize  float64 `json:"avg_trade_size"`
	AvgSpread     float64 `json:"avg_spread"`
	SpreadSamples int     `json:"spread_samples"`

	FinalizedAt time.Time `json:"finalized_at"`
}

// Series returns the (strike, type) key.
func (m PressureMetrics) Series() SeriesKey {
	return NewSeriesKey(m.Strike, m.Type)
}

// TradeCount is the number of trades routed to the window.
func (m PressureMetrics) TradeCount() int {
	return m.BuyTradeCount + m.SellTradeCount + m.NeutralTradeCount
}

// LargeTradeCount is the number of trades at or above the large-trade size.
func (m PressureMetrics) LargeTradeCount() int {
	return m.LargeBuyCount + m.LargeSellCount + m.LargeNeutralCount
}
