package contract

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		symbol  string
		want    models.ContractKey
		wantErr bool
	}{
		{
			symbol: "NQH5 C21000",
			want:   models.ContractKey{Root: "NQ", Strike: decimal.NewFromInt(21000), Type: models.Call, Expiry: "H5"},
		},
		{
			symbol: "ESZ4 P5900",
			want:   models.ContractKey{Root: "ES", Strike: decimal.NewFromInt(5900), Type: models.Put, Expiry: "Z4"},
		},
		{symbol: "NQH5 X21000", wantErr: true},
		{symbol: "NQA5 C21000", wantErr: true}, // A is not a month code
		{symbol: "NQH5C21000", wantErr: true},
		{symbol: "nqh5 c21000", wantErr: true},
		{symbol: "NQH5 C0", wantErr: true},
		{symbol: "", wantErr: true},
		{symbol: "NQH5 C21000.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			got, err := Parse(tt.symbol)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrUnresolvable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Root, got.Root)
			assert.True(t, tt.want.Strike.Equal(got.Strike))
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.Expiry, got.Expiry)
		})
	}
}

func TestResolverCachesByInstrument(t *testing.T) {
	r := NewResolver(nil)

	key, ok := r.Resolve(42, "NQH5 C21000")
	require.True(t, ok)
	assert.Equal(t, "21000:C", key.Series().String())

	// the cached mapping wins even if a later event carries another symbol
	again, ok := r.Resolve(42, "garbage")
	require.True(t, ok)
	assert.Equal(t, key.Series(), again.Series())

	_, ok = r.Resolve(43, "garbage")
	assert.False(t, ok)
	_, ok = r.Resolve(43, "garbage")
	assert.False(t, ok)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, uint64(2), stats.Failures)
}
