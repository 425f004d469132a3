package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDataRoundTrip(t *testing.T) {
	payload := []byte("hello turn")
	raw := encodeChannelData(0x4001, payload)

	assert.True(t, isChannelData(raw))

	number, data, ok := decodeChannelData(raw)
	require.True(t, ok)
	assert.Equal(t, uint16(0x4001), number)
	assert.Equal(t, payload, data)
}

func TestChannelDataPadding(t *testing.T) {
	// 3-byte payload pads to a 4-byte boundary; the length field must still
	// report the unpadded size.
	raw := encodeChannelData(0x4001, []byte{1, 2, 3})
	assert.Equal(t, channelDataHeaderSize+4, len(raw))

	_, data, ok := decodeChannelData(raw)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestIsChannelDataRejectsSTUNRange(t *testing.T) {
	// A STUN message's first two bytes always have the top two bits clear
	// (message type is at most 0x3FFF), which falls outside the channel
	// number range.
	assert.False(t, isChannelData([]byte{0x00, 0x01, 0x00, 0x00}))
}

func TestDecodeChannelDataTruncated(t *testing.T) {
	_, _, ok := decodeChannelData([]byte{0x40, 0x01})
	assert.False(t, ok)

	raw := encodeChannelData(0x4001, []byte("longer than reported"))
	_, _, ok = decodeChannelData(raw[:channelDataHeaderSize+2])
	assert.False(t, ok)
}
