package metrics

import (
	"fmt"
	"math"

	"optionflow/internal/models"
)

// SpreadMetrics contains spread figures for one quote.
type SpreadMetrics struct {
	Spread         float64 `json:"spread"`          // ask - bid
	RelativeSpread float64 `json:"relative_spread"` // spread / mid
	SpreadBps      float64 `json:"spread_bps"`
	MidPrice       float64 `json:"mid_price"`
	MicroPrice     float64 `json:"micro_price"` // size-weighted mid
}

// CalculateSpread computes spread metrics from a best bid and ask.
//
//   - spread_bps: (ask - bid) / mid * 10000
//   - mid_price: (bid + ask) / 2
//   - micro_price: (ask × bid_size + bid × ask_size) / (bid_size + ask_size)
//
// A locked quote (bid == ask) is valid and has zero spread.
func CalculateSpread(bidPrice, bidSize, askPrice, askSize float64) (*SpreadMetrics, error) {
	if bidPrice <= 0 || askPrice <= 0 {
		return nil, fmt.Errorf("invalid prices: bid=%f ask=%f (must be > 0)", bidPrice, askPrice)
	}

	if bidSize < 0 || askSize < 0 {
		return nil, fmt.Errorf("invalid sizes: bid=%f ask=%f (must be >= 0)", bidSize, askSize)
	}

	if askPrice < bidPrice {
		return nil, fmt.Errorf("crossed quote: bid=%f > ask=%f", bidPrice, askPrice)
	}

	spread := askPrice - bidPrice
	mid := (bidPrice + askPrice) / 2.0

	micro := mid
	if bidSize+askSize > 0 {
		micro = (askPrice*bidSize + bidPrice*askSize) / (bidSize + askSize)
	}

	return &SpreadMetrics{
		Spread:         roundToDecimal(spread, 8),
		RelativeSpread: spread / mid,
		SpreadBps:      roundToDecimal(spread/mid*10000.0, 4),
		MidPrice:       roundToDecimal(mid, 8),
		MicroPrice:     roundToDecimal(micro, 8),
	}, nil
}

// QuoteSpread is CalculateSpread for a QuoteUpdate.
func QuoteSpread(q models.QuoteUpdate) (*SpreadMetrics, error) {
	return CalculateSpread(q.BidPrice, q.BidSize, q.AskPrice, q.AskSize)
}

// SpreadInvariant validates spread metrics against the quote they came from.
func SpreadInvariant(s *SpreadMetrics, bidPrice, askPrice float64) error {
	if s.Spread < 0 {
		return fmt.Errorf("spread must be non-negative, got %f", s.Spread)
	}

	if s.MidPrice < bidPrice || s.MidPrice > askPrice {
		return fmt.Errorf("mid_price %f not in range [%f, %f]", s.MidPrice, bidPrice, askPrice)
	}

	if s.MicroPrice < bidPrice-1e-8 || s.MicroPrice > askPrice+1e-8 {
		return fmt.Errorf("micro_price %f not in range [%f, %f]", s.MicroPrice, bidPrice, askPrice)
	}

	if math.IsNaN(s.RelativeSpread) {
		return fmt.Errorf("relative spread is NaN")
	}

	return nil
}
