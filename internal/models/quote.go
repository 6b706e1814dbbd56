package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteState is the best bid/ask of one instrument. Last write wins.
type QuoteState struct {
	BidPrice decimal.Decimal `json:"bid_price"`
	BidSize  int64           `json:"bid_size"`
	AskPrice decimal.Decimal `json:"ask_price"`
	AskSize  int64           `json:"ask_size"`
	HasBid   bool            `json:"has_bid"`
	HasAsk   bool            `json:"has_ask"`
}

// Complete reports whether both sides are quoted.
func (q QuoteState) Complete() bool {
	return q.HasBid && q.HasAsk
}

// Spread returns ask - bid when both sides are quoted.
func (q QuoteState) Spread() (decimal.Decimal, bool) {
	if !q.Complete() {
		return decimal.Zero, false
	}
	return q.AskPrice.Sub(q.BidPrice), true
}

// Mid returns (bid + ask) / 2 when both sides are quoted.
func (q QuoteState) Mid() (decimal.Decimal, bool) {
	if !q.Complete() {
		return decimal.Zero, false
	}
	return q.BidPrice.Add(q.AskPrice).Div(decimal.NewFromInt(2)), true
}

// QuoteUpdate is one top-of-book observation used for market-maker
// classification. Spread and MidPrice are derived from the bid/ask.
type QuoteUpdate struct {
	Timestamp time.Time       `json:"timestamp"`
	Strike    decimal.Decimal `json:"strike"`
	Type      ContractType    `json:"contract_type"`
	Action    Action          `json:"action"`
	BidPrice  float64         `json:"bid_price"`
	BidSize   float64         `json:"bid_size"`
	AskPrice  float64         `json:"ask_price"`
	AskSize   float64         `json:"ask_size"`
	Spread    float64         `json:"spread"`
	MidPrice  float64         `json:"mid_price"`
}

// NewQuoteUpdate derives a QuoteUpdate from a complete quote.
func NewQuoteUpdate(ts time.Time, contract ContractKey, action Action, q QuoteState) QuoteUpdate {
	bid := q.BidPrice.InexactFloat64()
	ask := q.AskPrice.InexactFloat64()
	return QuoteUpdate{
		Timestamp: ts,
		Strike:    contract.Strike,
		Type:      contract.Type,
		Action:    action,
		BidPrice:  bid,
		BidSize:   float64(q.BidSize),
		AskPrice:  ask,
		AskSize:   float64(q.AskSize),
		Spread:    ask - bid,
		MidPrice:  (bid + ask) / 2,
	}
}

// Series returns the (strike, type) key of the update.
func (u QuoteUpdate) Series() SeriesKey {
	return NewSeriesKey(u.Strike, u.Type)
}

// MMBehavior is the classified quoting behavior of a quote sequence.
type MMBehavior string

const (
	BehaviorQuoteStuffing      MMBehavior = "QUOTE_STUFFING"
	BehaviorSpreadWidening     MMBehavior = "SPREAD_WIDENING"
	BehaviorInventoryBalancing MMBehavior = "INVENTORY_BALANCING"
	BehaviorAggressiveQuoting  MMBehavior = "AGGRESSIVE_QUOTING"
	BehaviorQuoteMaintenance   MMBehavior = "QUOTE_MAINTENANCE"
)

// PatternEvidence holds the features a classification was derived from.
type PatternEvidence struct {
	UpdateCount       int     `json:"update_count"`
	DurationSec       float64 `json:"duration_sec"`
	UpdateFrequency   float64 `json:"update_frequency"` // updates per second
	MeanSpread        float64 `json:"mean_spread"`
	SpreadCV          float64 `json:"spread_cv"`
	SizeSymmetry      float64 `json:"size_symmetry"`      // min/max of avg bid/ask size
	AvgPersistenceSec float64 `json:"avg_persistence_sec"` // mean gap between modify/cancel

	FrequencyScore   float64 `json:"frequency_score"`
	ConsistencyScore float64 `json:"consistency_score"`
	SymmetryScore    float64 `json:"symmetry_score"`
	PersistenceScore float64 `json:"persistence_score"`
}

// MarketMakingPattern is an ephemeral classification of a quote sequence.
type MarketMakingPattern struct {
	Series        SeriesKey       `json:"series"`
	Behavior      MMBehavior      `json:"behavior"`
	Confidence    float64         `json:"confidence"`
	MMProbability float64         `json:"mm_probability"`
	IsMarketMaker bool            `json:"is_market_maker"`
	Evidence      PatternEvidence `json:"evidence"`
	AnalyzedAt    time.Time       `json:"analyzed_at"`
}

// VolatilityRegime buckets the spread coefficient of variation.
type VolatilityRegime string

const (
	RegimeLow    VolatilityRegime = "LOW"
	RegimeNormal VolatilityRegime = "NORMAL"
	RegimeHigh   VolatilityRegime = "HIGH"
)

// MarketQualityMetrics summarises recent quote activity for one series.
type MarketQualityMetrics struct {
	Series              SeriesKey        `json:"series"`
	AvgSpread           float64          `json:"avg_spread"`
	EffectiveSpread     float64          `json:"effective_spread"`
	AvgDepth            float64          `json:"avg_depth"`
	MMParticipationRate float64          `json:"mm_participation_rate"`
	LiquidityScore      float64          `json:"liquidity_score"`  // 0-100
	StabilityScore      float64          `json:"stability_score"`  // 0-100
	EfficiencyScore     float64          `json:"efficiency_score"` // 0-100
	VolatilityRegime    VolatilityRegime `json:"volatility_regime"`
	QuoteCount          int              `json:"quote_count"`
	BatchCount          int              `json:"batch_count"`
	AssessedAt          time.Time        `json:"assessed_at"`
}
