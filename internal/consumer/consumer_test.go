package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionflow/internal/models"
)

func TestDecodeMessage(t *testing.T) {
	ev, err := DecodeMessage(map[string]any{
		"data": `{"timestamp":1741012260000000000,"instrument_id":1001,"symbol":"NQH5 C21000","action":"T","side":"T","price":"101.00","size":5,"sequence":42}`,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1001), ev.InstrumentID)
	assert.Equal(t, models.ActionTrade, ev.Action)
	assert.Equal(t, models.SideTrade, ev.Side)
	assert.Equal(t, "101", ev.Price.String())
	assert.Equal(t, int64(5), ev.Size)
	assert.Equal(t, int64(42), ev.Sequence)
}

func TestDecodeMessageNumericPrice(t *testing.T) {
	ev, err := DecodeMessage(map[string]any{
		"data": []byte(`{"timestamp":1,"instrument_id":1,"symbol":"NQH5 P20000","action":"A","side":"B","price":12.25,"size":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "12.25", ev.Price.String())
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage(map[string]any{})
	assert.Error(t, err)

	_, err = DecodeMessage(map[string]any{"data": 7})
	assert.Error(t, err)

	_, err = DecodeMessage(map[string]any{"data": "{not json"})
	assert.Error(t, err)
}
