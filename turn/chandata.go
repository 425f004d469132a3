package turn

import "encoding/binary"

const channelDataHeaderSize = 4

// isChannelData reports whether b could be a ChannelData message (RFC 5766
// §11.4): its first two bytes, read as a channel number, fall in the
// client-usable range, which excludes the 0b00 top bits a STUN message's
// magic-cookie-bearing header always has.
func isChannelData(b []byte) bool {
	if len(b) < channelDataHeaderSize {
		return false
	}
	num := binary.BigEndian.Uint16(b[0:2])
	return num >= minChannelNumber && num <= maxChannelNumber
}

// encodeChannelData builds a ChannelData message: 2-byte channel number,
// 2-byte length, then data padded to a 4-byte boundary (the padding is not
// counted in length and is not delivered to the peer).
func encodeChannelData(number uint16, data []byte) []byte {
	padded := (len(data) + 3) &^ 3
	out := make([]byte, channelDataHeaderSize+padded)
	binary.BigEndian.PutUint16(out[0:2], number)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(data)))
	copy(out[channelDataHeaderSize:], data)
	return out
}

// decodeChannelData splits a ChannelData message into its channel number
// and data payload.
func decodeChannelData(raw []byte) (number uint16, data []byte, ok bool) {
	if len(raw) < channelDataHeaderSize {
		return 0, nil, false
	}
	number = binary.BigEndian.Uint16(raw[0:2])
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if channelDataHeaderSize+length > len(raw) {
		return 0, nil, false
	}
	return number, raw[channelDataHeaderSize : channelDataHeaderSize+length], true
}
