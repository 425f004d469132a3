package mdns

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerRejectsNilConfig(t *testing.T) {
	_, err := Server(nil, nil)
	assert.ErrorIs(t, err, errNilConfig)
}

func TestIPToBytesConvertsIPv4(t *testing.T) {
	ip := net.ParseIP("192.168.1.42")
	got := ipToBytes(ip)
	assert.Equal(t, [4]byte{192, 168, 1, 42}, got)
}

func TestIPToBytesRejectsNonV4(t *testing.T) {
	got := ipToBytes(net.ParseIP("::1"))
	assert.Equal(t, [4]byte{}, got)
}
