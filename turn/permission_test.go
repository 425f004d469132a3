package turn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// permissions are keyed by IP only (RFC 5766 §2.3), so two addresses that
// share an IP but differ in port must resolve to the same permission.
func TestPermissionMapKeyedByIPOnly(t *testing.T) {
	m := newPermissionMap()
	addr1 := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 1000}
	addr2 := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 2000}

	p := &permission{}
	m.insert(addr1, p)

	found, ok := m.find(addr2)
	require.True(t, ok)
	assert.Same(t, p, found)
}

func TestPermissionMapDelete(t *testing.T) {
	m := newPermissionMap()
	addr := &net.UDPAddr{IP: net.ParseIP("192.168.0.1"), Port: 1000}

	m.insert(addr, &permission{})
	m.delete(addr)

	_, ok := m.find(addr)
	assert.False(t, ok)
}

func TestPermissionStateTransitions(t *testing.T) {
	p := &permission{}
	assert.Equal(t, permStateIdle, p.state)

	p.state = permStatePermitted
	assert.Equal(t, permStatePermitted, p.state)
}
