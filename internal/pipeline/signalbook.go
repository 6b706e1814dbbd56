package pipeline

import (
	"sort"
	"sync"

	"optionflow/internal/models"
)

// SignalBook keeps the latest signal per (strike, type).
type SignalBook struct {
	mu      sync.RWMutex
	signals map[models.SeriesKey]models.Signal
}

// NewSignalBook creates an empty SignalBook.
func NewSignalBook() *SignalBook {
	return &SignalBook{signals: make(map[models.SeriesKey]models.Signal)}
}

// Put stores sig unless a signal for a later window is already held.
func (b *SignalBook) Put(sig models.Signal) {
	key := sig.Series()

	b.mu.Lock()
	defer b.mu.Unlock()

	if cur, ok := b.signals[key]; ok && cur.Pressure.WindowStart.After(sig.Pressure.WindowStart) {
		return
	}
	b.signals[key] = sig
}

// Get returns the latest signal of a series.
func (b *SignalBook) Get(key models.SeriesKey) (models.Signal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sig, ok := b.signals[key]
	return sig, ok
}

// All returns the latest signal of every series ordered by series.
func (b *SignalBook) All() []models.Signal {
	b.mu.RLock()
	out := make([]models.Signal, 0, len(b.signals))
	for _, sig := range b.signals {
		out = append(out, sig)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Series().String() < out[j].Series().String()
	})
	return out
}
