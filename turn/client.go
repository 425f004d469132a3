// Package turn implements a client for the TURN relay protocol (RFC 5766,
// RFC 8656), layered on this module's stun codec. Only UDP transport to the
// TURN server is supported; TURN/TLS and TURN/TCP are out of scope.
package turn

import (
	"encoding/base64"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/stun"
)

const (
	defaultRTO          = 200 * time.Millisecond
	maxDataBufferSize   = math.MaxUint16
)

// ClientConfig configures a new Client.
type ClientConfig struct {
	// TURNServerAddr is the TURN server's host:port.
	TURNServerAddr string
	Username       string
	Password       string
	// Realm is the initial realm. Allocate always sends the anonymous
	// request first and replaces Realm with the one in the server's 401
	// challenge.
	Realm string
	// RTO is the initial STUN retransmission timeout. Defaults to 200ms.
	RTO time.Duration
	// Conn is the local socket the client sends and receives on.
	Conn          net.PacketConn
	LoggerFactory logging.LoggerFactory
}

// Client is a TURN client bound to a single local socket and a single TURN
// server. One Client supports at most one concurrent allocation.
type Client struct {
	conn        net.PacketConn
	turnServ    net.Addr
	turnServStr string

	usernameAttr stun.Username
	password     string
	realmAttr    stun.Realm

	rto time.Duration
	log logging.LeveledLogger

	trMap *transactionMap

	mu          sync.RWMutex
	relayedConn *relayConn

	allocLock  tryLock
	listenLock tryLock
}

// NewClient constructs a Client. It does not contact the server; call
// Allocate to do that.
func NewClient(config *ClientConfig) (*Client, error) {
	if config.Conn == nil {
		return nil, errNilConn
	}
	if config.TURNServerAddr == "" {
		return nil, errTURNServerAddrNotSet
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("turn")

	turnServ, err := net.ResolveUDPAddr("udp4", config.TURNServerAddr)
	if err != nil {
		return nil, err
	}

	rto := defaultRTO
	if config.RTO > 0 {
		rto = config.RTO
	}

	return &Client{
		conn:         config.Conn,
		turnServ:     turnServ,
		turnServStr:  turnServ.String(),
		usernameAttr: stun.Username(config.Username),
		password:     config.Password,
		realmAttr:    stun.Realm(config.Realm),
		rto:          rto,
		log:          log,
		trMap:        newTransactionMap(),
	}, nil
}

func (c *Client) turnServerAddr() net.Addr  { return c.turnServ }
func (c *Client) username() stun.Username   { return c.usernameAttr }
func (c *Client) realm() stun.Realm         { return c.realmAttr }
func (c *Client) writeTo(data []byte, to net.Addr) (int, error) {
	return c.conn.WriteTo(data, to)
}

func (c *Client) onDeallocated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relayedConn = nil
}

func (c *Client) getRelayedConn() *relayConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.relayedConn
}

func (c *Client) setRelayedConn(conn *relayConn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.relayedConn = conn
}

// Listen starts a background goroutine reading c.Conn and dispatching
// inbound packets to HandleInbound. Optional: a caller that already runs
// its own read loop can call HandleInbound directly instead.
func (c *Client) Listen() error {
	if err := c.listenLock.Lock(); err != nil {
		return fmt.Errorf("%w: %s", errAlreadyListening, err.Error())
	}

	go func() {
		buf := make([]byte, maxDataBufferSize)
		for {
			n, from, err := c.conn.ReadFrom(buf)
			if err != nil {
				c.log.Debugf("turn: read loop exiting: %v", err)
				return
			}
			if _, err := c.HandleInbound(buf[:n], from); err != nil {
				c.log.Debugf("turn: read loop exiting: %v", err)
				return
			}
		}
	}()

	return nil
}

// Close ends all outstanding transactions. It does not deallocate an
// active relay; call relayConn.Close (the net.PacketConn returned by
// Allocate) for that first.
func (c *Client) Close() {
	c.trMap.closeAndDeleteAll()
}

// Allocate requests a relay address from the TURN server (RFC 5766 §6),
// retrying the anonymous request with long-term credentials once the
// server's 401 challenge supplies a realm and nonce.
func (c *Client) Allocate() (net.PacketConn, error) {
	if err := c.allocLock.Lock(); err != nil {
		return nil, fmt.Errorf("%w: %s", errOneAllocateOnly, err.Error())
	}
	defer c.allocLock.Unlock()

	if existing := c.getRelayedConn(); existing != nil {
		return nil, fmt.Errorf("%w: %s", errAlreadyAllocated, existing.LocalAddr())
	}

	msg, err := stun.Build(
		stun.AllocateRequest,
		stun.RequestedTransport{Protocol: stun.ProtoUDP},
		stun.Fingerprint,
	)
	if err != nil {
		return nil, err
	}

	res, err := c.performTransaction(msg, c.turnServ, false)
	if err != nil {
		return nil, err
	}

	var nonce stun.Nonce
	if err := nonce.GetFrom(res.msg); err != nil {
		return nil, err
	}
	if err := c.realmAttr.GetFrom(res.msg); err != nil {
		return nil, err
	}
	integrity := stun.NewLongTermIntegrity(string(c.usernameAttr), string(c.realmAttr), c.password)

	msg, err = stun.Build(
		stun.AllocateRequest,
		stun.RequestedTransport{Protocol: stun.ProtoUDP},
		c.usernameAttr, c.realmAttr, nonce, integrity,
		stun.Fingerprint,
	)
	if err != nil {
		return nil, err
	}

	res, err = c.performTransaction(msg, c.turnServ, false)
	if err != nil {
		return nil, err
	}
	if res.msg.Type.Class == stun.ClassErrorResponse {
		var code stun.ErrorCodeAttribute
		if err := code.GetFrom(res.msg); err == nil {
			return nil, &turnServerError{code: code.Code, reason: code.Reason}
		}
		return nil, errAllocateMismatchedResponse
	}

	var relayed stun.XORRelayedAddress
	if err := relayed.GetFrom(res.msg); err != nil {
		return nil, err
	}
	var lifetime stun.Lifetime
	if err := lifetime.GetFrom(res.msg); err != nil {
		return nil, err
	}

	conn := newRelayConn(&relayConnConfig{
		Observer:    c,
		RelayedAddr: &net.UDPAddr{IP: relayed.IP, Port: relayed.Port},
		Integrity:   integrity,
		Nonce:       nonce,
		Lifetime:    time.Duration(lifetime) * time.Second,
		Log:         c.log,
	})
	c.setRelayedConn(conn)

	return conn, nil
}

func (c *Client) performTransaction(msg *stun.Message, to net.Addr, dontWait bool) (transactionResult, error) {
	key := transactionKey(msg.TransactionID)
	tr := newTransaction(key, append([]byte(nil), msg.Raw...), to, c.rto)
	c.trMap.insert(tr)

	c.log.Tracef("turn: start %s transaction %s to %s", msg.Type, key, to)
	if _, err := c.conn.WriteTo(tr.raw, to); err != nil {
		c.trMap.delete(key)
		return transactionResult{}, err
	}

	tr.startRetransmitTimer(c.onRetransmitTimeout)

	if dontWait {
		return transactionResult{}, nil
	}

	res := tr.wait()
	if res.err != nil {
		return res, res.err
	}
	return res, nil
}

func (c *Client) onRetransmitTimeout(key string, nthRtx int) {
	tr, ok := c.trMap.find(key)
	if !ok {
		return
	}

	if nthRtx >= maxRetransmits {
		c.trMap.delete(key)
		tr.complete(transactionResult{err: errTransactionTimedOut})
		return
	}

	if _, err := c.conn.WriteTo(tr.raw, tr.to); err != nil {
		c.trMap.delete(key)
		tr.complete(transactionResult{err: err})
		return
	}
	tr.startRetransmitTimer(c.onRetransmitTimeout)
}

// HandleInbound demultiplexes a packet read from Conn: STUN responses are
// matched to pending transactions, Data indications and ChannelData are
// routed to the active relay connection, and anything else is reported
// unhandled so the caller can treat it as application data arriving
// directly (not via the relay).
func (c *Client) HandleInbound(data []byte, from net.Addr) (bool, error) {
	switch {
	case stun.IsMessage(data):
		return true, c.handleSTUN(data, from)
	case isChannelData(data):
		return true, c.handleChannelData(data)
	default:
		return false, nil
	}
}

func (c *Client) handleSTUN(data []byte, from net.Addr) error {
	raw := append([]byte(nil), data...)
	msg := &stun.Message{Raw: raw}
	if err := msg.Decode(); err != nil {
		return fmt.Errorf("%w: %s", errFailedToDecodeSTUN, err.Error())
	}

	if msg.Type.Class == stun.ClassRequest {
		return fmt.Errorf("%w: %s", errUnexpectedSTUNRequestMessage, msg.Type)
	}

	if msg.Type.Class == stun.ClassIndication && msg.Type.Method == stun.MethodData {
		var peerAddr stun.XORPeerAddress
		if err := peerAddr.GetFrom(msg); err != nil {
			return err
		}
		var payload stun.Data
		if err := payload.GetFrom(msg); err != nil {
			return err
		}
		if conn := c.getRelayedConn(); conn != nil {
			conn.handleInbound(payload, &net.UDPAddr{IP: peerAddr.IP, Port: peerAddr.Port})
		}
		return nil
	}

	key := base64.StdEncoding.EncodeToString(msg.TransactionID[:])
	tr, ok := c.trMap.find(key)
	if !ok {
		c.log.Debugf("turn: no pending transaction for %s", msg.Type)
		return nil
	}
	tr.stopRetransmitTimer()
	c.trMap.delete(key)

	if !tr.complete(transactionResult{msg: msg, from: from}) {
		c.log.Debugf("turn: no listener for transaction %s", key)
	}
	return nil
}

func (c *Client) handleChannelData(data []byte) error {
	number, payload, ok := decodeChannelData(data)
	if !ok {
		return errFailedToDecodeSTUN
	}

	conn := c.getRelayedConn()
	if conn == nil {
		return nil
	}
	addr, ok := conn.findAddrByChannelNumber(number)
	if !ok {
		return fmt.Errorf("%w: %d", errChannelBindNotFound, number)
	}
	conn.handleInbound(payload, addr)
	return nil
}
