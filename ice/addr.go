package ice

import (
	"net"
	"time"

	"github.com/udpmesh/ice/stun"
)

// parseAddr splits a net.Addr into its IP, port and inferred NetworkType.
// ok is false if addr isn't a UDP address this agent understands.
func parseAddr(in net.Addr) (ip net.IP, port int, networkType NetworkType, ok bool) {
	switch addr := in.(type) {
	case *net.UDPAddr:
		ip = addr.IP
		port = addr.Port
	default:
		return nil, 0, 0, false
	}

	networkType, err := determineNetworkType(udpNetworkFor(ip), ip)
	if err != nil {
		return nil, 0, 0, false
	}
	return ip, port, networkType, true
}

func udpNetworkFor(ip net.IP) string {
	if ip.To4() != nil {
		return "udp4"
	}
	return "udp6"
}

// addrIPAndPort extracts the IP and port from a net.Addr, for comparing
// against already-known remote candidates.
func addrIPAndPort(in net.Addr) (net.IP, int, error) {
	switch addr := in.(type) {
	case *net.UDPAddr:
		return addr.IP, addr.Port, nil
	default:
		return nil, 0, ErrAddressParseFailed
	}
}

// getXORMappedAddr sends a STUN Binding request to serverAddr over conn and
// waits up to deadline for a response, returning the XOR-MAPPED-ADDRESS it
// reports — the "what does the world see me as" query used to build
// server-reflexive candidates (RFC 8445 §5.1.1.1, RFC 5389 §7.3.1).
func getXORMappedAddr(conn net.PacketConn, serverAddr net.Addr, deadline time.Duration) (*stun.XORMappedAddress, error) {
	req, err := stun.Build(stun.BindingRequest)
	if err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return nil, err
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	if _, err := conn.WriteTo(req.Raw, serverAddr); err != nil {
		return nil, err
	}

	const maxMessageSize = 1280
	buf := make([]byte, maxMessageSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			return nil, err
		}

		res := &stun.Message{Raw: append([]byte{}, buf[:n]...)}
		if err := res.Decode(); err != nil {
			continue
		}
		if res.TransactionID != req.TransactionID {
			continue
		}

		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res); err != nil {
			return nil, err
		}
		return &xorAddr, nil
	}
}
