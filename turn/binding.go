package turn

import (
	"net"
	"sync"
	"time"
)

type bindingState int

const (
	bindingStateIdle bindingState = iota
	bindingStateRequest
	bindingStateReady
	bindingStateRefresh
	bindingStateFailed
)

// minChannelNumber and maxChannelNumber bound the CHANNEL-NUMBER range
// usable by a client, per RFC 5766 §11: 0x4000 through 0x7FFE.
const (
	minChannelNumber uint16 = 0x4000
	maxChannelNumber uint16 = 0x7FFE
)

// binding is one ChannelBind association between a channel number and a
// peer address (RFC 5766 §11), used to send data with a 4-byte header
// instead of a full STUN Send indication.
type binding struct {
	addr   net.Addr
	number uint16

	mu          sync.Mutex
	state       bindingState
	refreshedAt time.Time
}

func (b *binding) getState() bindingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *binding) setState(s bindingState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *binding) getRefreshedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshedAt
}

func (b *binding) setRefreshedAt(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshedAt = t
}

// bindingManager assigns fresh channel numbers and indexes bindings by both
// peer address and channel number, for the two directions data flows:
// outbound (know the peer, need the channel) and inbound (know the channel
// from a ChannelData header, need the peer).
type bindingManager struct {
	mu      sync.Mutex
	byAddr  map[string]*binding
	byNum   map[uint16]*binding
	nextNum uint16
}

func newBindingManager() *bindingManager {
	return &bindingManager{
		byAddr:  map[string]*binding{},
		byNum:   map[uint16]*binding{},
		nextNum: minChannelNumber,
	}
}

func (m *bindingManager) findByAddr(addr net.Addr) (*binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byAddr[addr.String()]
	return b, ok
}

func (m *bindingManager) findByNumber(n uint16) (*binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byNum[n]
	return b, ok
}

func (m *bindingManager) create(addr net.Addr) *binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	num := m.nextNum
	if num > maxChannelNumber {
		num = minChannelNumber
	}
	m.nextNum = num + 1

	b := &binding{addr: addr, number: num}
	m.byAddr[addr.String()] = b
	m.byNum[num] = b
	return b
}

func (m *bindingManager) deleteByAddr(addr net.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byAddr[addr.String()]; ok {
		delete(m.byNum, b.number)
		delete(m.byAddr, addr.String())
	}
}
