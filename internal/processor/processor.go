// Package processor turns raw book events into processed events: it resolves
// the contract, keeps the quote book current and infers trade direction.
package processor

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"optionflow/internal/book"
	"optionflow/internal/contract"
	"optionflow/internal/instrumentation"
	"optionflow/internal/models"
)

// Status tags a Result.
type Status int

const (
	StatusOK Status = iota
	StatusSkipped
)

// SkipReason explains a skipped event.
type SkipReason string

const (
	ReasonNone         SkipReason = ""
	ReasonUnresolvable SkipReason = "unresolvable_contract"
	ReasonMalformed    SkipReason = "malformed_event"
)

// Result is the outcome of processing one event: Ok(Event) or Skipped(Reason).
type Result struct {
	Status Status
	Reason SkipReason
	Event  *models.ProcessedEvent
}

// OK reports whether the event was processed.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// QuoteSink receives top-of-book updates after book changes.
type QuoteSink interface {
	RecordQuote(q models.QuoteUpdate)
}

// Config holds processor settings.
type Config struct {
	PriceTolerance decimal.Decimal // distance to bid/ask still counted as at-the-quote
}

// DefaultConfig returns the default processor configuration.
func DefaultConfig() Config {
	return Config{PriceTolerance: decimal.RequireFromString("0.01")}
}

// Stats are processor counters.
type Stats struct {
	Processed    uint64
	Unresolvable uint64
	Malformed    uint64
}

// Processor consumes BookEvents. Events must arrive in exchange-timestamp
// order per instrument; reordering is the caller's job.
type Processor struct {
	cfg      Config
	resolver *contract.Resolver
	book     *book.QuoteBook
	sink     QuoteSink
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	processed    atomic.Uint64
	unresolvable atomic.Uint64
	malformed    atomic.Uint64
}

// New creates a Processor. sink and metrics may be nil.
func New(cfg Config, resolver *contract.Resolver, b *book.QuoteBook, sink QuoteSink, logger *slog.Logger, metrics *instrumentation.Metrics) *Processor {
	if cfg.PriceTolerance.IsZero() {
		cfg.PriceTolerance = DefaultConfig().PriceTolerance
	}
	return &Processor{
		cfg:      cfg,
		resolver: resolver,
		book:     b,
		sink:     sink,
		logger:   logger.With("component", "processor"),
		metrics:  metrics,
	}
}

// Process handles one raw event. It never panics on bad input; problems are
// reported as Skipped results and counted.
func (p *Processor) Process(raw models.BookEvent) Result {
	contractKey, ok := p.resolver.Resolve(raw.InstrumentID, raw.Symbol)
	if !ok {
		p.unresolvable.Add(1)
		return p.skip(raw, ReasonUnresolvable)
	}

	if !wellFormed(raw) {
		p.malformed.Add(1)
		return p.skip(raw, ReasonMalformed)
	}

	ev := &models.ProcessedEvent{BookEvent: raw, Contract: contractKey}

	switch raw.Action {
	case models.ActionAdd, models.ActionModify:
		if raw.Side == models.SideBid {
			p.book.UpdateBid(raw.InstrumentID, raw.Price, raw.Size)
		} else {
			p.book.UpdateAsk(raw.InstrumentID, raw.Price, raw.Size)
		}
		ev.Quote = p.book.BidAsk(raw.InstrumentID)
		p.emitQuote(ev)

	case models.ActionCancel:
		ev.Quote = p.book.BidAsk(raw.InstrumentID)
		p.emitQuote(ev)

	case models.ActionTrade:
		ev.Quote = p.book.BidAsk(raw.InstrumentID)
		ev.Direction, ev.PriceLevel = Classify(raw.Price, ev.Quote, p.cfg.PriceTolerance)
		if p.metrics != nil {
			p.metrics.RecordTradeDirection(string(ev.Direction))
		}
	}

	p.processed.Add(1)
	if p.metrics != nil {
		p.metrics.RecordEventProcessed(string(raw.Action))
		p.metrics.RecordStreamLag(float64(time.Since(raw.Time()).Milliseconds()))
	}

	return Result{Status: StatusOK, Event: ev}
}

// Classify infers the trade direction and price level of a trade at price
// against quote q. The ask is checked first, so a price within tolerance of
// both sides counts as a buy.
func Classify(price decimal.Decimal, q models.QuoteState, tolerance decimal.Decimal) (models.TradeDirection, models.PriceLevel) {
	if !q.Complete() {
		return models.DirectionUnknown, models.PriceLevelUnknown
	}

	switch {
	case price.Sub(q.AskPrice).Abs().LessThanOrEqual(tolerance):
		return models.DirectionBuy, models.PriceLevelAsk
	case price.Sub(q.BidPrice).Abs().LessThanOrEqual(tolerance):
		return models.DirectionSell, models.PriceLevelBid
	case price.GreaterThan(q.BidPrice) && price.LessThan(q.AskPrice):
		return models.DirectionNeutral, models.PriceLevelMid
	case price.LessThan(q.BidPrice):
		return models.DirectionUnknown, models.PriceLevelBelowBid
	default:
		return models.DirectionUnknown, models.PriceLevelAboveAsk
	}
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Processed:    p.processed.Load(),
		Unresolvable: p.unresolvable.Load(),
		Malformed:    p.malformed.Load(),
	}
}

func (p *Processor) skip(raw models.BookEvent, reason SkipReason) Result {
	if p.metrics != nil {
		p.metrics.RecordEventSkipped(string(reason))
	}
	p.logger.Debug("event_skipped",
		"reason", reason,
		"instrument_id", raw.InstrumentID,
		"symbol", raw.Symbol,
		"sequence", raw.Sequence,
	)
	return Result{Status: StatusSkipped, Reason: reason}
}

func (p *Processor) emitQuote(ev *models.ProcessedEvent) {
	if p.sink == nil || !ev.Quote.Complete() {
		return
	}
	p.sink.RecordQuote(models.NewQuoteUpdate(ev.Time(), ev.Contract, ev.Action, ev.Quote))
}

func wellFormed(raw models.BookEvent) bool {
	if raw.Timestamp <= 0 || !raw.Action.Valid() || !raw.Side.Valid() || raw.Size < 0 {
		return false
	}
	switch raw.Action {
	case models.ActionTrade:
		return raw.Price.IsPositive() && raw.Size > 0
	case models.ActionAdd, models.ActionModify:
		return raw.Side == models.SideBid || raw.Side == models.SideAsk
	}
	return true
}
