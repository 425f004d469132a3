package ice

import (
	"net"

	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/mdns"
	"golang.org/x/net/ipv4"
)

// MulticastDNSMode represents the different Multicast modes ICE can run in
type MulticastDNSMode byte

// MulticastDNSMode enum
const (
	// MulticastDNSModeDisabled means remote mDNS candidates will be discarded, and local host candidates will use IPs
	MulticastDNSModeDisabled MulticastDNSMode = iota + 1

	// MulticastDNSModeQueryOnly means remote mDNS candidates will be accepted, and local host candidates will use IPs
	MulticastDNSModeQueryOnly

	// MulticastDNSModeQueryAndGather means remote mDNS candidates will be accepted, and local host candidates will use mDNS
	MulticastDNSModeQueryAndGather
)

func generateMulticastDNSName() (string, error) {
	return generateRandString("", ".local")
}

// mdnsGatherer owns the process of standing up (or opportunistically
// declining) the multicast socket an Agent's privacy-preserving ".local"
// candidates ride on. Binding the multicast group and picking the actual
// mode the agent ends up running in are folded into one step here, since a
// bind failure silently demotes MulticastDNSModeQueryOnly/QueryAndGather to
// MulticastDNSModeDisabled rather than failing agent construction.
type mdnsGatherer struct {
	conn *mdns.Conn
	mode MulticastDNSMode
}

// startMulticastDNS attempts to join the mDNS multicast group and, in
// MulticastDNSModeQueryAndGather, announce hostName as a local name.
// Failure to bind is not fatal to agent construction: it downgrades mode to
// MulticastDNSModeDisabled and the agent continues without mDNS.
func startMulticastDNS(mode MulticastDNSMode, hostName string, log logging.LeveledLogger) (*mdnsGatherer, error) {
	if mode == MulticastDNSModeDisabled {
		return &mdnsGatherer{mode: mode}, nil
	}

	addr, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddress)
	if err != nil {
		return nil, err
	}

	l, err := net.ListenUDP("udp4", addr)
	if err != nil {
		// If ICE fails to start MulticastDNS server just warn the user and continue
		log.Errorf("Failed to enable mDNS, continuing in mDNS disabled mode: (%s)", err)
		return &mdnsGatherer{mode: MulticastDNSModeDisabled}, nil
	}

	cfg := &mdns.Config{}
	if mode == MulticastDNSModeQueryAndGather {
		cfg.LocalNames = []string{hostName}
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l), cfg)
	if err != nil {
		return nil, err
	}

	return &mdnsGatherer{conn: conn, mode: mode}, nil
}

// close shuts down the multicast socket, if one was opened.
func (g *mdnsGatherer) close(log logging.LeveledLogger) {
	if g.conn == nil {
		return
	}
	if err := g.conn.Close(); err != nil {
		log.Warnf("Failed to close mDNS: %v", err)
	}
}
