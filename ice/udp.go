package ice

import (
	"math/rand"
	"net"
	"sync/atomic"

	"github.com/udpmesh/ice/logging"
)

// nextPort is a process-wide counter, seeded with a random value, used to
// round-robin through a configured port range instead of retrying the same
// port on every bind failure, mirroring the allocator a C UDP
// implementation would keep as a static variable.
var nextPort = rand.Uint32()

// listenUDPInPortRange opens a UDP socket on ip, using a port from
// [portMin, portMax] if one is configured, or an ephemeral port otherwise.
// When a range is configured it tries every port in the range once, in
// round-robin order, before giving up.
func listenUDPInPortRange(n *Net, log logging.LeveledLogger, portMax, portMin int, network string, laddr *net.UDPAddr) (net.PacketConn, error) {
	if portMax == 0 && portMin == 0 {
		return n.ListenPacket(network, laddr.String())
	}
	if portMin > portMax {
		return nil, ErrPort
	}

	spread := uint32(portMax-portMin) + 1
	start := atomic.AddUint32(&nextPort, 1)

	for i := uint32(0); i < spread; i++ {
		port := portMin + int((start+i)%spread)
		tryAddr := &net.UDPAddr{IP: laddr.IP, Port: port}
		conn, err := n.ListenPacket(network, tryAddr.String())
		if err == nil {
			return conn, nil
		}
		log.Tracef("failed to listen %s %s: %v", network, tryAddr, err)
	}

	return nil, ErrPort
}
