package wsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDirectUsesPayloadField(t *testing.T) {
	payload, err := encodeDirect("order", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"order","payload":{"id":7}}`, string(payload))
}

func TestEncodeImmediateUsesDataField(t *testing.T) {
	payload, err := encodeImmediate("order", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"order","data":{"id":7}}`, string(payload))
}

func TestEncodeBatchShape(t *testing.T) {
	payload, err := encodeBatch([]queuedMessage{
		{Type: "a", Data: 1},
		{Type: "b", Data: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"batch","messages":[{"type":"a","data":1},{"type":"b","data":"x"}]}`, string(payload))
}

func TestDecodeMessageObject(t *testing.T) {
	msg, err := decodeMessage([]byte(`{"type":"trade","payload":{"price":"42.5","qty":"3"}}`))
	require.NoError(t, err)
	assert.Equal(t, "trade", msg.Type)

	var out struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
	}
	require.NoError(t, msg.Unmarshal(&out))
	assert.Equal(t, "42.5", out.Price)
	assert.Equal(t, "3", out.Qty)
}

func TestDecodeMessageNonObject(t *testing.T) {
	msg, err := decodeMessage([]byte(`[1,2,3]`))
	require.NoError(t, err)
	assert.Empty(t, msg.Type)
	assert.Nil(t, msg.Payload)

	// Without a payload field Unmarshal falls back to the full frame.
	var out []int
	require.NoError(t, msg.Unmarshal(&out))
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestDecodeMessageInvalid(t *testing.T) {
	_, err := decodeMessage([]byte(`{broken`))
	require.Error(t, err)
}
