package turn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingManagerAssignsIncreasingNumbers(t *testing.T) {
	m := newBindingManager()
	addr1 := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 1000}
	addr2 := &net.UDPAddr{IP: net.ParseIP("192.168.0.2"), Port: 1000}

	b1 := m.create(addr1)
	b2 := m.create(addr2)

	assert.Equal(t, minChannelNumber, b1.number)
	assert.Equal(t, minChannelNumber+1, b2.number)

	found, ok := m.findByAddr(addr1)
	require.True(t, ok)
	assert.Same(t, b1, found)

	foundByNum, ok := m.findByNumber(b2.number)
	require.True(t, ok)
	assert.Same(t, b2, foundByNum)
}

func TestBindingManagerWrapsAtMaxChannelNumber(t *testing.T) {
	m := newBindingManager()
	m.nextNum = maxChannelNumber

	last := m.create(&net.UDPAddr{IP: net.ParseIP("10.0.0.1")})
	assert.Equal(t, maxChannelNumber, last.number)

	wrapped := m.create(&net.UDPAddr{IP: net.ParseIP("10.0.0.2")})
	assert.Equal(t, minChannelNumber, wrapped.number)
}

func TestBindingManagerDeleteByAddr(t *testing.T) {
	m := newBindingManager()
	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.1")}
	b := m.create(addr)

	m.deleteByAddr(addr)

	_, ok := m.findByAddr(addr)
	assert.False(t, ok)
	_, ok = m.findByNumber(b.number)
	assert.False(t, ok)
}
