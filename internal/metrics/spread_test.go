package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSpread(t *testing.T) {
	s, err := CalculateSpread(100.50, 10, 101.00, 15)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Spread, 1e-9)
	assert.InDelta(t, 100.75, s.MidPrice, 1e-9)
	// (101*10 + 100.5*15) / 25
	assert.InDelta(t, 100.7, s.MicroPrice, 1e-9)
	assert.NoError(t, SpreadInvariant(s, 100.50, 101.00))
}

func TestCalculateSpreadRejectsBadQuotes(t *testing.T) {
	_, err := CalculateSpread(0, 1, 1, 1)
	assert.Error(t, err)
	_, err = CalculateSpread(2, 1, 1, 1)
	assert.Error(t, err)
	_, err = CalculateSpread(1, -1, 2, 1)
	assert.Error(t, err)

	s, err := CalculateSpread(1, 0, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Spread)
	assert.Equal(t, 1.0, s.MicroPrice)
}
