package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the book-update action of a raw event.
type Action string

const (
	ActionAdd    Action = "A"
	ActionModify Action = "M"
	ActionCancel Action = "C"
	ActionTrade  Action = "T"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionModify, ActionCancel, ActionTrade:
		return true
	}
	return false
}

// Side is the book side an event applies to.
type Side string

const (
	SideBid   Side = "B"
	SideAsk   Side = "A"
	SideTrade Side = "T"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case SideBid, SideAsk, SideTrade:
		return true
	}
	return false
}

// BookEvent is a raw order-book update as delivered by the market-data feed.
type BookEvent struct {
	Timestamp    int64           `json:"timestamp"`     // exchange time, ns since epoch
	InstrumentID int64           `json:"instrument_id"` // venue instrument id
	Symbol       string          `json:"symbol"`        // e.g. "NQH5 C21000"
	Action       Action          `json:"action"`        // A, M, C, T
	Side         Side            `json:"side"`          // B, A, T
	Price        decimal.Decimal `json:"price"`
	Size         int64           `json:"size"`
	Sequence     int64           `json:"sequence"`
}

// Time returns the exchange timestamp in UTC.
func (e BookEvent) Time() time.Time {
	return time.Unix(0, e.Timestamp).UTC()
}

func (e BookEvent) String() string {
	return fmt.Sprintf("%s#%d %s/%s %s x %d @%d", e.Symbol, e.InstrumentID, e.Action, e.Side, e.Price, e.Size, e.Sequence)
}

// TradeDirection is the inferred aggressor side of a trade.
type TradeDirection string

const (
	DirectionBuy     TradeDirection = "buy"
	DirectionSell    TradeDirection = "sell"
	DirectionNeutral TradeDirection = "neutral"
	DirectionUnknown TradeDirection = "unknown"
)

// PriceLevel locates a trade price relative to the quote at trade time.
type PriceLevel string

const (
	PriceLevelBid      PriceLevel = "bid"
	PriceLevelAsk      PriceLevel = "ask"
	PriceLevelMid      PriceLevel = "mid"
	PriceLevelBelowBid PriceLevel = "below_bid"
	PriceLevelAboveAsk PriceLevel = "above_ask"
	PriceLevelUnknown  PriceLevel = "unknown" // bid or ask missing
)

// ProcessedEvent is a BookEvent enriched with its contract and the quote
// snapshot taken while it was processed. Direction and PriceLevel are only
// set for trades.
type ProcessedEvent struct {
	BookEvent
	Contract   ContractKey    `json:"contract"`
	Quote      QuoteState     `json:"quote"`
	Direction  TradeDirection `json:"direction,omitempty"`
	PriceLevel PriceLevel     `json:"price_level,omitempty"`
}

// IsTrade reports whether the event is an executed trade.
func (p *ProcessedEvent) IsTrade() bool {
	return p.Action == ActionTrade
}
