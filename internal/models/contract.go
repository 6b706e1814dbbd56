package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ContractType is the option right.
type ContractType string

const (
	Call ContractType = "C"
	Put  ContractType = "P"
)

// ParseContractType accepts "C"/"P" and the long forms "call"/"put".
func ParseContractType(s string) (ContractType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CALL":
		return Call, nil
	case "P", "PUT":
		return Put, nil
	}
	return "", fmt.Errorf("unknown contract type %q", s)
}

func (t ContractType) String() string {
	switch t {
	case Call:
		return "call"
	case Put:
		return "put"
	}
	return string(t)
}

// ContractKey identifies an option contract. Immutable once resolved.
type ContractKey struct {
	Root   string          `json:"root"`   // e.g. "NQ"
	Strike decimal.Decimal `json:"strike"` // e.g. 21000
	Type   ContractType    `json:"contract_type"`
	Expiry string          `json:"expiry"` // month code + year digit, e.g. "H5"
}

// Series returns the (strike, type) key used by windows and quality tracking.
func (k ContractKey) Series() SeriesKey {
	return SeriesKey{Strike: k.Strike.String(), Type: k.Type}
}

func (k ContractKey) String() string {
	return fmt.Sprintf("%s%s %s%s", k.Root, k.Expiry, k.Type, k.Strike)
}

// SeriesKey is a comparable (strike, contract type) pair. The strike is held
// in its canonical decimal string form so it can key maps.
type SeriesKey struct {
	Strike string       `json:"strike"`
	Type   ContractType `json:"contract_type"`
}

// NewSeriesKey builds a SeriesKey from a decimal strike.
func NewSeriesKey(strike decimal.Decimal, t ContractType) SeriesKey {
	return SeriesKey{Strike: strike.String(), Type: t}
}

func (s SeriesKey) String() string {
	return s.Strike + ":" + string(s.Type)
}
