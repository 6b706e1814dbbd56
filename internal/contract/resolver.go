// Package contract maps venue instrument ids and symbols to option contracts.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"optionflow/internal/cache"
	"optionflow/internal/models"
)

// ErrUnresolvable is returned by Parse for symbols outside the grammar.
var ErrUnresolvable = errors.New("unresolvable contract symbol")

// <ROOT(2)><MONTH(1)><YEAR(1)> <C|P><STRIKE>, e.g. "NQH5 C21000".
var symbolPattern = regexp.MustCompile(`^([A-Z]{2})([FGHJKMNQUVXZ])([0-9]) ([CP])([0-9]+)$`)

// Parse parses a contract symbol.
func Parse(symbol string) (models.ContractKey, error) {
	m := symbolPattern.FindStringSubmatch(strings.TrimSpace(symbol))
	if m == nil {
		return models.ContractKey{}, fmt.Errorf("%w: %q", ErrUnresolvable, symbol)
	}

	strike, err := decimal.NewFromString(m[5])
	if err != nil || !strike.IsPositive() {
		return models.ContractKey{}, fmt.Errorf("%w: bad strike in %q", ErrUnresolvable, symbol)
	}

	contractType, err := models.ParseContractType(m[4])
	if err != nil {
		return models.ContractKey{}, fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}

	return models.ContractKey{
		Root:   m[1],
		Strike: strike,
		Type:   contractType,
		Expiry: m[2] + m[3],
	}, nil
}

// Stats are resolver counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Failures uint64
}

// Resolver resolves and caches contracts by instrument id. The
// instrument-to-contract mapping is treated as immutable for the life of a
// contract, so the first successful resolution wins.
type Resolver struct {
	cache    cache.Cache[int64, models.ContractKey]
	hits     atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

// NewResolver creates a Resolver backed by c. A nil c gets an unbounded,
// non-expiring cache.
func NewResolver(c cache.Cache[int64, models.ContractKey]) *Resolver {
	if c == nil {
		c = cache.New[int64, models.ContractKey](cache.Options[int64]{})
	}
	return &Resolver{cache: c}
}

// Resolve returns the contract for an instrument. It never panics; false
// means the symbol is unresolvable. Failures are not cached.
func (r *Resolver) Resolve(instrumentID int64, symbol string) (models.ContractKey, bool) {
	if key, ok := r.cache.Get(instrumentID); ok {
		r.hits.Add(1)
		return key, true
	}
	r.misses.Add(1)

	key, err := Parse(symbol)
	if err != nil {
		r.failures.Add(1)
		return models.ContractKey{}, false
	}

	r.cache.Set(instrumentID, key)
	return key, true
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Hits:     r.hits.Load(),
		Misses:   r.misses.Load(),
		Failures: r.failures.Load(),
	}
}
