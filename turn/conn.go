package turn

import (
	"io"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/stun"
)

const (
	maxReadQueueSize    = 1024
	permRefreshInterval = 120 * time.Second
	maxCredentialRetries = 3

	timerIDRefreshAlloc = iota
	timerIDRefreshPerms
)

// relayObserver is the subset of Client a relayConn needs to send requests
// through the shared socket and transaction map.
type relayObserver interface {
	turnServerAddr() net.Addr
	username() stun.Username
	realm() stun.Realm
	writeTo(data []byte, to net.Addr) (int, error)
	performTransaction(msg *stun.Message, to net.Addr, dontWait bool) (transactionResult, error)
	onDeallocated()
}

type inboundDatagram struct {
	data []byte
	from net.Addr
}

// relayConn is the net.PacketConn view of a TURN allocation (RFC 5766): its
// LocalAddr is the server-assigned relayed transport address, and
// ReadFrom/WriteTo move application data over SendIndication/ChannelData
// and Data indications, transparently managing CreatePermission, channel
// binding, and allocation/permission refresh in the background.
type relayConn struct {
	obs         relayObserver
	relayedAddr net.Addr
	perms       *permissionMap
	bindings    *bindingManager
	log         logging.LeveledLogger

	mu        sync.RWMutex
	integrity stun.MessageIntegrity
	nonce     stun.Nonce
	lifetime  time.Duration

	readCh    chan inboundDatagram
	closeCh   chan struct{}
	closeOnce sync.Once
	readTimer *time.Timer

	refreshAllocTimer *periodicTimer
	refreshPermsTimer *periodicTimer
}

type relayConnConfig struct {
	Observer    relayObserver
	RelayedAddr net.Addr
	Integrity   stun.MessageIntegrity
	Nonce       stun.Nonce
	Lifetime    time.Duration
	Log         logging.LeveledLogger
}

func newRelayConn(cfg *relayConnConfig) *relayConn {
	c := &relayConn{
		obs:         cfg.Observer,
		relayedAddr: cfg.RelayedAddr,
		perms:       newPermissionMap(),
		bindings:    newBindingManager(),
		integrity:   cfg.Integrity,
		nonce:       cfg.Nonce,
		lifetime:    cfg.Lifetime,
		readCh:      make(chan inboundDatagram, maxReadQueueSize),
		closeCh:     make(chan struct{}),
		readTimer:   time.NewTimer(math.MaxInt64),
		log:         cfg.Log,
	}

	c.refreshAllocTimer = newPeriodicTimer(timerIDRefreshAlloc, c.onRefreshTimer, c.getLifetime()/2)
	c.refreshPermsTimer = newPeriodicTimer(timerIDRefreshPerms, c.onRefreshTimer, permRefreshInterval)
	c.refreshAllocTimer.start()
	c.refreshPermsTimer.start()

	return c
}

func (c *relayConn) getLifetime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifetime
}

func (c *relayConn) setLifetime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lifetime = d
}

func (c *relayConn) getNonce() stun.Nonce {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonce
}

func (c *relayConn) setNonce(n stun.Nonce) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonce = n
}

// ReadFrom implements net.PacketConn.
func (c *relayConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case dgram := <-c.readCh:
		n := copy(p, dgram.data)
		if n < len(dgram.data) {
			return n, dgram.from, io.ErrShortBuffer
		}
		return n, dgram.from, nil
	case <-c.readTimer.C:
		return 0, nil, &net.OpError{Op: "read", Net: "turn", Addr: c.relayedAddr, Err: errReadTimeout}
	case <-c.closeCh:
		return 0, nil, &net.OpError{Op: "read", Net: "turn", Addr: c.relayedAddr, Err: errAlreadyClosed}
	}
}

// WriteTo implements net.PacketConn: it punches a CreatePermission hole for
// addr's IP if needed, then prefers an established channel binding over a
// Send indication once one exists (RFC 5766 §11, cheaper per-packet
// overhead: 4 bytes instead of a full STUN header).
func (c *relayConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if _, ok := addr.(*net.UDPAddr); !ok {
		return 0, errUDPAddrCast
	}

	if err := c.ensurePermission(addr); err != nil {
		return 0, err
	}

	b, ok := c.bindings.findByAddr(addr)
	if !ok {
		b = c.bindings.create(addr)
	}

	switch b.getState() {
	case bindingStateIdle:
		b.setState(bindingStateRequest)
		go c.bindChannel(b)
		return c.sendIndication(p, addr)
	case bindingStateRequest:
		return c.sendIndication(p, addr)
	case bindingStateFailed:
		return c.sendIndication(p, addr)
	}

	if time.Since(b.getRefreshedAt()) > 5*time.Minute {
		b.setState(bindingStateRefresh)
		go c.bindChannel(b)
	}

	return c.obs.writeTo(encodeChannelData(b.number, p), c.obs.turnServerAddr())
}

func (c *relayConn) sendIndication(p []byte, addr net.Addr) (int, error) {
	ip, port, err := addrIPAndPort(addr)
	if err != nil {
		return 0, err
	}
	msg, err := stun.Build(
		stun.SendIndication,
		stun.XORPeerAddress{IP: ip, Port: port},
		stun.Data(p),
		stun.Fingerprint,
	)
	if err != nil {
		return 0, err
	}
	return c.obs.writeTo(msg.Raw, c.obs.turnServerAddr())
}

func (c *relayConn) ensurePermission(addr net.Addr) error {
	perm, ok := c.perms.find(addr)
	if !ok {
		perm = &permission{}
		c.perms.insert(addr, perm)
	}

	perm.mu.Lock()
	defer perm.mu.Unlock()

	if perm.state == permStatePermitted {
		return nil
	}

	for i := 0; i < maxCredentialRetries; i++ {
		err := c.createPermissions(addr)
		if err == nil {
			perm.state = permStatePermitted
			return nil
		}
		if err != errTryAgain {
			c.perms.delete(addr)
			return err
		}
	}
	c.perms.delete(addr)
	return errTryAgain
}

func (c *relayConn) createPermissions(addrs ...net.Addr) error {
	setters := []stun.Setter{stun.CreatePermissionRequest}
	for _, addr := range addrs {
		ip, port, err := addrIPAndPort(addr)
		if err != nil {
			return err
		}
		setters = append(setters, stun.XORPeerAddress{IP: ip, Port: port})
	}
	setters = append(setters, c.obs.username(), c.obs.realm(), c.getNonce(), c.integrity, stun.Fingerprint)

	msg, err := stun.Build(setters...)
	if err != nil {
		return err
	}

	res, err := c.obs.performTransaction(msg, c.obs.turnServerAddr(), false)
	if err != nil {
		return err
	}
	return c.checkErrorResponse(res.msg, errCreatePermissionMismatchedResponse)
}

func (c *relayConn) bindChannel(b *binding) {
	ip, port, err := addrIPAndPort(b.addr)
	if err != nil {
		b.setState(bindingStateFailed)
		return
	}

	msg, err := stun.Build(
		stun.ChannelBindRequest,
		stun.XORPeerAddress{IP: ip, Port: port},
		stun.ChannelNumber(b.number),
		c.obs.username(), c.obs.realm(), c.getNonce(), c.integrity,
		stun.Fingerprint,
	)
	if err != nil {
		b.setState(bindingStateFailed)
		return
	}

	res, err := c.obs.performTransaction(msg, c.obs.turnServerAddr(), false)
	if err != nil {
		c.log.Warnf("channel bind failed: %v", err)
		b.setState(bindingStateFailed)
		return
	}
	if err := c.checkErrorResponse(res.msg, errChannelBindMismatchedResponse); err != nil {
		c.log.Warnf("channel bind rejected: %v", err)
		b.setState(bindingStateFailed)
		return
	}

	b.setRefreshedAt(time.Now())
	b.setState(bindingStateReady)
}

func (c *relayConn) checkErrorResponse(res *stun.Message, mismatch error) error {
	if res.Type.Class != stun.ClassErrorResponse {
		return nil
	}
	var code stun.ErrorCodeAttribute
	if err := code.GetFrom(res); err == nil {
		if code.Code == stun.CodeStaleNonce {
			c.refreshNonceFrom(res)
			return errTryAgain
		}
		return &turnServerError{code: code.Code, reason: code.Reason}
	}
	return mismatch
}

func (c *relayConn) refreshNonceFrom(res *stun.Message) {
	var nonce stun.Nonce
	if err := nonce.GetFrom(res); err == nil {
		c.setNonce(nonce)
	}
}

// refresh sends a Refresh request with the given lifetime (0 deallocates).
func (c *relayConn) refresh(lifetime time.Duration, dontWait bool) error {
	msg, err := stun.Build(
		stun.RefreshRequest,
		stun.Lifetime(lifetime/time.Second),
		c.obs.username(), c.obs.realm(), c.getNonce(), c.integrity,
		stun.Fingerprint,
	)
	if err != nil {
		return err
	}

	res, err := c.obs.performTransaction(msg, c.obs.turnServerAddr(), dontWait)
	if err != nil {
		return err
	}
	if dontWait {
		return nil
	}
	if err := c.checkErrorResponse(res.msg, errRefreshMismatchedResponse); err != nil {
		return err
	}

	var updated stun.Lifetime
	if err := updated.GetFrom(res.msg); err != nil {
		return err
	}
	c.setLifetime(time.Duration(updated) * time.Second)
	return nil
}

func (c *relayConn) refreshPermissions() error {
	addrs := c.perms.addrs()
	if len(addrs) == 0 {
		return nil
	}
	return c.createPermissions(addrs...)
}

func (c *relayConn) onRefreshTimer(id int) {
	var err error
	switch id {
	case timerIDRefreshAlloc:
		for i := 0; i < maxCredentialRetries; i++ {
			if err = c.refresh(c.getLifetime(), false); err != errTryAgain {
				break
			}
		}
	case timerIDRefreshPerms:
		for i := 0; i < maxCredentialRetries; i++ {
			if err = c.refreshPermissions(); err != errTryAgain {
				break
			}
		}
	}
	if err != nil {
		c.log.Warnf("turn: background refresh failed: %v", err)
	}
}

// handleInbound delivers a decoded Data indication or ChannelData payload
// to the next ReadFrom call.
func (c *relayConn) handleInbound(data []byte, from net.Addr) {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case c.readCh <- inboundDatagram{data: cp, from: from}:
	default:
		c.log.Warnf("turn: relay read buffer full, dropping datagram")
	}
}

func (c *relayConn) findAddrByChannelNumber(n uint16) (net.Addr, bool) {
	b, ok := c.bindings.findByNumber(n)
	if !ok {
		return nil, false
	}
	return b.addr, true
}

// LocalAddr implements net.PacketConn.
func (c *relayConn) LocalAddr() net.Addr { return c.relayedAddr }

// Close implements net.PacketConn: it deallocates the relay (best-effort,
// fire-and-forget) and unblocks any pending ReadFrom.
func (c *relayConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.refreshAllocTimer.stop()
		c.refreshPermsTimer.stop()
		close(c.closeCh)
		c.obs.onDeallocated()
		err = c.refresh(0, true)
	})
	return err
}

func (c *relayConn) SetDeadline(t time.Time) error { return c.SetReadDeadline(t) }

func (c *relayConn) SetReadDeadline(t time.Time) error {
	var d time.Duration
	if t.IsZero() {
		d = math.MaxInt64
	} else {
		d = time.Until(t)
	}
	c.readTimer.Reset(d)
	return nil
}

func (c *relayConn) SetWriteDeadline(t time.Time) error { return nil }

// turnServerError wraps a STUN ERROR-CODE response from the TURN server.
type turnServerError struct {
	code   int
	reason string
}

func (e *turnServerError) Error() string {
	if e.reason == "" {
		return "turn: server error " + strconv.Itoa(e.code)
	}
	return "turn: server error " + strconv.Itoa(e.code) + ": " + e.reason
}
