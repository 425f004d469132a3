package mdns

import (
	"time"

	"github.com/udpmesh/ice/logging"
)

// DefaultAddress is the default multicast group and port used by mDNS, and
// in most cases should be the address that the net.Conn passed to Server is
// bound to.
const DefaultAddress = "224.0.0.0:5353"

// Config configures an mDNS Conn.
type Config struct {
	// QueryInterval controls how often a pending Query resends its
	// question until it gets an answer. Defaults to one second.
	QueryInterval time.Duration

	// LocalNames are the names this Conn answers questions for, used by
	// a candidate gatherer advertising its own host candidates as
	// ".local" names instead of raw IPs.
	LocalNames []string

	LoggerFactory logging.LoggerFactory
}
