// Package book tracks the best bid and ask of each instrument.
package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"optionflow/internal/models"
)

// QuoteBook holds the current top of book per instrument. No history is
// kept; one RWMutex guards every read and write.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[int64]*models.QuoteState
}

// New creates an empty QuoteBook.
func New() *QuoteBook {
	return &QuoteBook{quotes: make(map[int64]*models.QuoteState)}
}

// UpdateBid sets the best bid. Non-positive prices are ignored and reported
// as false.
func (b *QuoteBook) UpdateBid(instrumentID int64, price decimal.Decimal, size int64) bool {
	if !price.IsPositive() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.stateLocked(instrumentID)
	q.BidPrice = price
	q.BidSize = size
	q.HasBid = true
	return true
}

// UpdateAsk sets the best ask. Non-positive prices are ignored and reported
// as false.
func (b *QuoteBook) UpdateAsk(instrumentID int64, price decimal.Decimal, size int64) bool {
	if !price.IsPositive() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.stateLocked(instrumentID)
	q.AskPrice = price
	q.AskSize = size
	q.HasAsk = true
	return true
}

// BidAsk returns a copy of the instrument's quote. Missing sides have
// HasBid/HasAsk unset.
func (b *QuoteBook) BidAsk(instrumentID int64) models.QuoteState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if q, ok := b.quotes[instrumentID]; ok {
		return *q
	}
	return models.QuoteState{}
}

// Remove drops an instrument, e.g. after expiry.
func (b *QuoteBook) Remove(instrumentID int64) {
	b.mu.Lock()
	delete(b.quotes, instrumentID)
	b.mu.Unlock()
}

// Len returns the number of tracked instruments.
func (b *QuoteBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.quotes)
}

func (b *QuoteBook) stateLocked(instrumentID int64) *models.QuoteState {
	q, ok := b.quotes[instrumentID]
	if !ok {
		q = &models.QuoteState{}
		b.quotes[instrumentID] = q
	}
	return q
}
