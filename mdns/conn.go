// Package mdns implements a minimal one-shot multicast DNS responder and
// resolver (RFC 6762), scoped to what an ICE agent needs: answer A queries
// for its own ".local" names, and resolve a peer's ".local" candidate
// address to a routable IP.
package mdns

import (
	"context"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/udpmesh/ice/logging"
	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"
)

const (
	inboundBufferSize    = 512
	defaultQueryInterval = time.Second
	destinationAddress   = "224.0.0.251:5353"
	maxMessageRecords    = 3
	responseTTL          = 120
)

type pendingQuery struct {
	nameWithSuffix string
	resultCh       chan queryResult
}

type queryResult struct {
	answer dnsmessage.ResourceHeader
	addr   net.Addr
}

// Conn is an mDNS responder and resolver bound to one multicast socket.
type Conn struct {
	mu  sync.RWMutex
	log logging.LeveledLogger

	socket  *ipv4.PacketConn
	dstAddr *net.UDPAddr

	queryInterval time.Duration
	localNames    []string
	pending       []pendingQuery

	closed chan struct{}
}

// Server starts an mDNS Conn over an already-bound multicast socket,
// joining the mDNS group on every local interface.
func Server(conn *ipv4.PacketConn, config *Config) (*Conn, error) {
	if config == nil {
		return nil, errNilConfig
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	joinErrCount := 0
	for i := range ifaces {
		if err := conn.JoinGroup(&ifaces[i], &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251)}); err != nil {
			joinErrCount++
		}
	}
	if joinErrCount >= len(ifaces) {
		return nil, errJoiningMulticastGroup
	}

	dstAddr, err := net.ResolveUDPAddr("udp", destinationAddress)
	if err != nil {
		return nil, err
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	localNames := make([]string, 0, len(config.LocalNames))
	for _, l := range config.LocalNames {
		localNames = append(localNames, l+".")
	}

	c := &Conn{
		queryInterval: defaultQueryInterval,
		socket:        conn,
		dstAddr:       dstAddr,
		localNames:    localNames,
		log:           loggerFactory.NewLogger("mdns"),
		closed:        make(chan struct{}),
	}
	if config.QueryInterval != 0 {
		c.queryInterval = config.QueryInterval
	}

	go c.start()
	return c, nil
}

// Close shuts down the responder and unblocks any Query in flight.
func (c *Conn) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
	}

	if err := c.socket.Close(); err != nil {
		return err
	}

	<-c.closed
	return nil
}

// Query resends an A question for name until an answer arrives or ctx is
// done.
func (c *Conn) Query(ctx context.Context, name string) (dnsmessage.ResourceHeader, net.Addr, error) {
	select {
	case <-c.closed:
		return dnsmessage.ResourceHeader{}, nil, errConnectionClosed
	default:
	}

	nameWithSuffix := name + "."

	resultCh := make(chan queryResult, 1)
	c.mu.Lock()
	c.pending = append(c.pending, pendingQuery{nameWithSuffix, resultCh})
	ticker := time.NewTicker(c.queryInterval)
	c.mu.Unlock()
	defer ticker.Stop()

	c.sendQuestion(nameWithSuffix)
	for {
		select {
		case <-ticker.C:
			c.sendQuestion(nameWithSuffix)
		case <-c.closed:
			return dnsmessage.ResourceHeader{}, nil, errConnectionClosed
		case res := <-resultCh:
			return res.answer, res.addr, nil
		case <-ctx.Done():
			return dnsmessage.ResourceHeader{}, nil, errContextElapsed
		}
	}
}

func ipToBytes(ip net.IP) (out [4]byte) {
	rawIP := ip.To4()
	if rawIP == nil {
		return out
	}

	ipInt := big.NewInt(0)
	ipInt.SetBytes(rawIP)
	copy(out[:], ipInt.Bytes())
	return out
}

func interfaceForRemote(remote string) (net.IP, error) {
	conn, err := net.Dial("udp", remote)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

func (c *Conn) sendQuestion(name string) {
	packedName, err := dnsmessage.NewName(name)
	if err != nil {
		c.log.Warnf("mdns: failed to construct question: %v", err)
		return
	}

	msg := dnsmessage.Message{
		Header: dnsmessage.Header{},
		Questions: []dnsmessage.Question{
			{Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, Name: packedName},
		},
	}

	raw, err := msg.Pack()
	if err != nil {
		c.log.Warnf("mdns: failed to pack question: %v", err)
		return
	}

	if _, err := c.socket.WriteTo(raw, nil, c.dstAddr); err != nil {
		c.log.Warnf("mdns: failed to send question: %v", err)
	}
}

func (c *Conn) sendAnswer(name string, dst net.IP) {
	packedName, err := dnsmessage.NewName(name)
	if err != nil {
		c.log.Warnf("mdns: failed to construct answer: %v", err)
		return
	}

	msg := dnsmessage.Message{
		Header: dnsmessage.Header{Response: true, Authoritative: true},
		Answers: []dnsmessage.Resource{
			{
				Header: dnsmessage.ResourceHeader{
					Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, Name: packedName, TTL: responseTTL,
				},
				Body: &dnsmessage.AResource{A: ipToBytes(dst)},
			},
		},
	}

	raw, err := msg.Pack()
	if err != nil {
		c.log.Warnf("mdns: failed to pack answer: %v", err)
		return
	}

	if _, err := c.socket.WriteTo(raw, nil, c.dstAddr); err != nil {
		c.log.Warnf("mdns: failed to send answer: %v", err)
	}
}

func (c *Conn) start() {
	defer close(c.closed)

	buf := make([]byte, inboundBufferSize)
	var parser dnsmessage.Parser

	for {
		n, _, src, err := c.socket.ReadFrom(buf)
		if err != nil {
			return
		}

		c.handlePacket(&parser, buf[:n], src)
	}
}

func (c *Conn) handlePacket(parser *dnsmessage.Parser, b []byte, src net.Addr) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, err := parser.Start(b); err != nil {
		c.log.Warnf("mdns: failed to parse packet: %v", err)
		return
	}

	for i := 0; i <= maxMessageRecords; i++ {
		q, err := parser.Question()
		if err == dnsmessage.ErrSectionDone {
			break
		} else if err != nil {
			c.log.Warnf("mdns: failed to parse question: %v", err)
			return
		}

		for _, localName := range c.localNames {
			if localName != q.Name.String() {
				continue
			}
			localAddr, err := interfaceForRemote(src.String())
			if err != nil {
				c.log.Warnf("mdns: failed to find local interface toward %s: %v", src, err)
				continue
			}
			c.sendAnswer(q.Name.String(), localAddr)
		}
	}

	for i := 0; i <= maxMessageRecords; i++ {
		a, err := parser.AnswerHeader()
		if err == dnsmessage.ErrSectionDone {
			return
		}
		if err != nil {
			c.log.Warnf("mdns: failed to parse answer: %v", err)
			return
		}

		if a.Type != dnsmessage.TypeA && a.Type != dnsmessage.TypeAAAA {
			continue
		}

		for i := len(c.pending) - 1; i >= 0; i-- {
			if c.pending[i].nameWithSuffix != a.Name.String() {
				continue
			}
			c.pending[i].resultCh <- queryResult{a, src}
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
		}
	}
}
