package ice

import (
	"fmt"
	"net"
)

// NetworkType represents the transport protocol and IP family a candidate
// was gathered on.
type NetworkType byte

// NetworkType enum. This agent only ever gathers UDP candidates (RFC 8445's
// TCP candidate types are out of scope), but both IP families are tracked
// so dual-stack hosts get separate checklists per RFC 8445 §6.1.2.1.
const (
	NetworkTypeUDP4 NetworkType = iota + 1
	NetworkTypeUDP6
)

// String returns the short network description, "udp4" or "udp6".
func (n NetworkType) String() string {
	switch n {
	case NetworkTypeUDP4:
		return "udp4"
	case NetworkTypeUDP6:
		return "udp6"
	default:
		return fmt.Sprintf("unknown(%d)", byte(n))
	}
}

// IsUDP reports whether this network type is UDP (always true today).
func (n NetworkType) IsUDP() bool { return true }

// IsIPv4 reports whether this network type carries IPv4 addresses.
func (n NetworkType) IsIPv4() bool { return n == NetworkTypeUDP4 }

// IsIPv6 reports whether this network type carries IPv6 addresses.
func (n NetworkType) IsIPv6() bool { return n == NetworkTypeUDP6 }

// supportedNetworks is every network string gatherCandidatesLocal binds on.
var supportedNetworks = []string{"udp4", "udp6"}

// determineNetworkType infers the NetworkType from a network string and
// resolved IP address, used by the candidate constructors to validate that
// the declared network and address family agree.
func determineNetworkType(network string, ip net.IP) (NetworkType, error) {
	isIPv4 := ip.To4() != nil
	switch {
	case (network == "udp" || network == "udp4") && isIPv4:
		return NetworkTypeUDP4, nil
	case (network == "udp" || network == "udp6") && !isIPv4:
		return NetworkTypeUDP6, nil
	default:
		return 0, ErrHost
	}
}
