package ice

import (
	"errors"
	"net"
)

var errNoAddressAssigned = errors.New("ice: no address assigned to interface")

// InterfaceBase aliases net.Interface so Interface can embed it and still
// expose net.Interface's fields directly.
type InterfaceBase net.Interface

// Interface pairs a system network interface with the addresses discovered
// on it, letting localInterfaces build a host-candidate list from a single
// enumeration pass.
type Interface struct {
	InterfaceBase
	addrs []net.Addr
}

// NewInterface wraps a net.Interface for address collection.
func NewInterface(ifc net.Interface) *Interface {
	return &Interface{InterfaceBase: InterfaceBase(ifc)}
}

// AddAddr records an address discovered for this interface.
func (ifc *Interface) AddAddr(addr net.Addr) {
	ifc.addrs = append(ifc.addrs, addr)
}

// Addrs returns the addresses recorded for this interface.
func (ifc *Interface) Addrs() ([]net.Addr, error) {
	if len(ifc.addrs) == 0 {
		return nil, errNoAddressAssigned
	}
	return ifc.addrs, nil
}

// Net is the network-stack collaborator an Agent dials and listens
// through. It is always backed by the host's real network: unlike the
// simulated-network facility some ICE implementations carry for testing
// NAT topologies, this agent only ever runs against a live UDP stack, so
// Net is a thin pass-through to the net package rather than a virtual
// router.
type Net struct{}

// NewNet returns a Net bound to the host's real network stack.
func NewNet() *Net { return &Net{} }

// Interfaces returns the system's network interfaces together with their
// configured addresses.
func (n *Net) Interfaces() ([]*Interface, error) {
	sysIfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	ifs := make([]*Interface, 0, len(sysIfs))
	for _, sysIf := range sysIfs {
		ifc := NewInterface(sysIf)
		if addrs, err := sysIf.Addrs(); err == nil {
			for _, addr := range addrs {
				ifc.AddAddr(addr)
			}
		}
		ifs = append(ifs, ifc)
	}
	return ifs, nil
}

// ListenPacket announces on the local network address.
func (n *Net) ListenPacket(network, address string) (net.PacketConn, error) {
	return net.ListenPacket(network, address)
}

// ListenUDP acts like ListenPacket for UDP networks.
func (n *Net) ListenUDP(network string, laddr *net.UDPAddr) (*net.UDPConn, error) {
	return net.ListenUDP(network, laddr)
}

// ResolveUDPAddr returns an address of a UDP endpoint.
func (n *Net) ResolveUDPAddr(network, address string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr(network, address)
}
