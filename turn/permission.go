package turn

import (
	"net"
	"sync"
)

type permState int

const (
	permStateIdle permState = iota
	permStatePermitted
)

// permission tracks whether a CreatePermission request has succeeded for a
// peer IP, per RFC 5766 §8: permissions install per source IP, not per
// (IP, port), and expire five minutes after creation or refresh.
type permission struct {
	mu    sync.Mutex
	state permState
}

func (p *permission) getState() permState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *permission) setState(s permState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// permissionMap indexes permissions by peer IP (RFC 5766 §2.3: permissions
// are per IP address, independent of port).
type permissionMap struct {
	mu sync.Mutex
	m  map[string]*permission
}

func newPermissionMap() *permissionMap {
	return &permissionMap{m: map[string]*permission{}}
}

func permKey(addr net.Addr) string {
	ip, _, err := addrIPAndPort(addr)
	if err != nil {
		return addr.String()
	}
	return ip.String()
}

func (m *permissionMap) find(addr net.Addr) (*permission, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.m[permKey(addr)]
	return p, ok
}

func (m *permissionMap) insert(addr net.Addr, p *permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[permKey(addr)] = p
}

func (m *permissionMap) delete(addr net.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, permKey(addr))
}

func (m *permissionMap) addrs() []net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	addrs := make([]net.Addr, 0, len(m.m))
	for k := range m.m {
		addrs = append(addrs, &net.UDPAddr{IP: net.ParseIP(k)})
	}
	return addrs
}

func addrIPAndPort(a net.Addr) (net.IP, int, error) {
	udpAddr, ok := a.(*net.UDPAddr)
	if !ok {
		return nil, 0, errUDPAddrCast
	}
	return udpAddr.IP, udpAddr.Port, nil
}
