package ice

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/stun"
)

// candidateIOStats bundles the two consent-freshness timestamps every
// candidate tracks — when it last sent and last received a packet — behind
// a single field so candidateBase doesn't carry the pair of atomic.Value
// slots (and their nil-check boilerplate) inline. checkKeepalive and
// validateSelectedPair read these to decide when a pair needs a STUN
// keepalive (RFC 7675) or should be declared dead.
type candidateIOStats struct {
	sent atomic.Value
	recv atomic.Value
}

func (s *candidateIOStats) touch(outbound bool) {
	if outbound {
		s.sent.Store(time.Now())
	} else {
		s.recv.Store(time.Now())
	}
}

func (s *candidateIOStats) lastSent() time.Time {
	if v := s.sent.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

func (s *candidateIOStats) lastReceived() time.Time {
	if v := s.recv.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// candidateBase carries the state and behavior shared by every concrete
// candidate type (host/srflx/prflx/relay): identity, address, priority
// inputs, the owning agent, and the socket a candidate reads and writes
// through.
type candidateBase struct {
	id            string
	networkType   NetworkType
	candidateType CandidateType

	component      uint16
	address        string
	port           int
	relatedAddress *CandidateRelatedAddress

	resolvedAddr *net.UDPAddr

	io   candidateIOStats
	conn net.PacketConn

	currAgent *Agent
	closeCh   chan struct{}
	closedCh  chan struct{}
}

// newCandidateID returns candidateID unchanged if the caller supplied one,
// otherwise mints a fresh randomized one.
func newCandidateID(candidateID string) (string, error) {
	if candidateID != "" {
		return candidateID, nil
	}
	return generateCandidateID()
}

// resolvedCandidateBase builds the candidateBase state shared by every
// candidate type whose address is resolvable up front: server-reflexive,
// peer-reflexive, and relay candidates all parse an IP immediately and
// carry a related address (RFC 8445 §5.1.2.2). Host candidates are the one
// exception — an mDNS-masked ".local" address can't be resolved until a
// query completes — so CandidateHost builds its own candidateBase instead
// of using this helper.
func resolvedCandidateBase(candidateID, network, address string, port int, ctype CandidateType, component uint16, related *CandidateRelatedAddress) (candidateBase, error) {
	id, err := newCandidateID(candidateID)
	if err != nil {
		return candidateBase{}, err
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return candidateBase{}, ErrAddressParseFailed
	}

	networkType, err := determineNetworkType(network, ip)
	if err != nil {
		return candidateBase{}, err
	}

	return candidateBase{
		id:             id,
		networkType:    networkType,
		candidateType:  ctype,
		address:        address,
		port:           port,
		component:      component,
		resolvedAddr:   &net.UDPAddr{IP: ip, Port: port},
		relatedAddress: related,
	}, nil
}

// ID returns Candidate ID
func (c *candidateBase) ID() string {
	return c.id
}

// Address returns Candidate Address
func (c *candidateBase) Address() string {
	return c.address
}

// Port returns Candidate Port
func (c *candidateBase) Port() int {
	return c.port
}

// Type returns candidate type
func (c *candidateBase) Type() CandidateType {
	return c.candidateType
}

// NetworkType returns candidate NetworkType
func (c *candidateBase) NetworkType() NetworkType {
	return c.networkType
}

// Component returns candidate component
func (c *candidateBase) Component() uint16 {
	return c.component
}

// LocalPreference returns the local preference for this candidate
func (c *candidateBase) LocalPreference() uint16 {
	return defaultLocalPreference
}

// RelatedAddress returns *CandidateRelatedAddress
func (c *candidateBase) RelatedAddress() *CandidateRelatedAddress {
	return c.relatedAddress
}

// start attaches this candidate to its owning agent and the socket it was
// gathered on, then begins reading from it.
func (c *candidateBase) start(a *Agent, conn net.PacketConn) {
	c.currAgent = a
	c.conn = conn
	c.closeCh = make(chan struct{})
	c.closedCh = make(chan struct{})

	go c.recvLoop()
}

// recvLoop reads inbound packets on this candidate's socket until it is
// closed, dispatching each one in turn.
func (c *candidateBase) recvLoop() {
	defer close(c.closedCh)

	log := c.agent().log
	buf := make([]byte, receiveMTU)
	for {
		n, srcAddr, err := c.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		c.dispatch(buf[:n], srcAddr, log)
	}
}

// dispatch routes one inbound packet: STUN traffic is decoded and handed to
// the agent's connectivity-check state machine under its lock; everything
// else is treated as data-plane traffic from an already-validated remote
// candidate and appended to the read buffer the application drains.
func (c *candidateBase) dispatch(buf []byte, srcAddr net.Addr, log logging.LeveledLogger) {
	if stun.IsMessage(buf) {
		m := &stun.Message{Raw: make([]byte, len(buf))}
		// Explicitly copy raw buffer so Message can own the memory.
		copy(m.Raw, buf)
		if err := m.Decode(); err != nil {
			log.Warnf("Failed to decode inbound STUN packet from %s to %s: %v", srcAddr, c.addr(), err)
			return
		}
		if err := c.agent().run(func(agent *Agent) {
			agent.handleInbound(m, c, srcAddr)
		}); err != nil {
			log.Warnf("Failed to handle inbound STUN message: %v", err)
		}
		return
	}

	if !c.agent().validateNonSTUNTraffic(c, srcAddr) {
		log.Warnf("Discarded packet from %s: not a known remote candidate", srcAddr)
		return
	}

	// NOTE This will return packetio.ErrFull if the buffer ever manages to fill up.
	if _, err := c.agent().buffer.Write(buf); err != nil {
		log.Warnf("Failed to buffer inbound packet: %v", err)
	}
}

// close stops the recvLoop
func (c *candidateBase) close() error {
	if c.conn != nil {
		// Unblock recvLoop
		close(c.closeCh)
		// Close the conn
		err := c.conn.Close()
		if err != nil {
			return err
		}

		// Wait until the recvLoop is closed
		<-c.closedCh
	}

	return nil
}

func (c *candidateBase) writeTo(raw []byte, dst Candidate) (int, error) {
	n, err := c.conn.WriteTo(raw, dst.addr())
	if err != nil {
		return n, fmt.Errorf("failed to send packet: %v", err)
	}
	c.seen(true)
	return n, nil
}

// Priority computes the priority for this ICE Candidate (RFC 8445 §5.1.2.1).
//
// The local preference MUST be an integer from 0 (lowest preference) to
// 65535 (highest preference) inclusive. When there is only a single IP
// address, this value SHOULD be set to 65535. If there are multiple
// candidates for a particular component for a particular data stream that
// have the same type, the local preference MUST be unique for each one.
func (c *candidateBase) Priority() uint32 {
	return (1<<24)*uint32(c.Type().Preference()) +
		(1<<8)*uint32(c.LocalPreference()) +
		uint32(256-c.Component())
}

// Equal is used to compare two candidateBases
func (c *candidateBase) Equal(other Candidate) bool {
	return c.NetworkType() == other.NetworkType() &&
		c.Type() == other.Type() &&
		c.Address() == other.Address() &&
		c.Port() == other.Port() &&
		c.RelatedAddress().Equal(other.RelatedAddress())
}

// String makes the candidateBase printable
func (c *candidateBase) String() string {
	return fmt.Sprintf("%s %s:%d%s", c.Type(), c.Address(), c.Port(), c.relatedAddress)
}

// LastReceived returns a time.Time indicating the last time
// this candidate was received
func (c *candidateBase) LastReceived() time.Time {
	return c.io.lastReceived()
}

// LastSent returns a time.Time indicating the last time
// this candidate was sent
func (c *candidateBase) LastSent() time.Time {
	return c.io.lastSent()
}

func (c *candidateBase) seen(outbound bool) {
	c.io.touch(outbound)
}

func (c *candidateBase) addr() *net.UDPAddr {
	return c.resolvedAddr
}

func (c *candidateBase) agent() *Agent {
	return c.currAgent
}
