package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/stun"
)

// withLiveConn gives a candidate a real (loopback) socket so code paths
// that write a STUN response (e.g. a lost role-conflict tie-break) have a
// net.PacketConn to write through instead of a nil one.
func withLiveConn(t *testing.T, c *CandidateHost) *CandidateHost {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to open test conn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c.candidateBase.conn = conn
	return c
}

func newTestAgentForSelector(t *testing.T, isControlling bool, tieBreaker uint64) *Agent {
	t.Helper()
	a := &Agent{
		isControlling: isControlling,
		tieBreaker:    tieBreaker,
		log:           logging.NewDefaultLoggerFactory().NewLogger("test"),
	}
	if isControlling {
		a.selector = &controllingSelector{agent: a, log: a.log}
	} else {
		a.selector = &controlledSelector{agent: a, log: a.log}
	}
	return a
}

func buildRoleAttrMessage(t *testing.T, controlling bool, tieBreaker uint64) *stun.Message {
	t.Helper()
	var setter stun.Setter
	if controlling {
		setter = stun.ICEControlling(tieBreaker)
	} else {
		setter = stun.ICEControlled(tieBreaker)
	}
	m, err := stun.Build(stun.BindingRequest, setter, stun.Fingerprint)
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}
	return m
}

// RFC 8445 §7.3.1.1: both sides controlling, lower tie-breaker loses and
// switches to controlled.
func TestRoleConflictBothControllingLowerSwitches(t *testing.T) {
	a := newTestAgentForSelector(t, true, 10)
	m := buildRoleAttrMessage(t, true, 20)

	local := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	ok := a.handleRoleConflict(m, local, remote)

	assert.True(t, ok)
	assert.False(t, a.isControlling)
}

// The higher tie-breaker wins and stays controlling, answering with a Role
// Conflict error instead of switching.
func TestRoleConflictBothControllingHigherStays(t *testing.T) {
	a := newTestAgentForSelector(t, true, 20)
	m := buildRoleAttrMessage(t, true, 10)

	local := withLiveConn(t, newTestHostCandidate(t, "10.0.0.1", ComponentRTP))
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	ok := a.handleRoleConflict(m, local, remote)

	assert.False(t, ok)
	assert.True(t, a.isControlling)
}

// Both controlled: the side with the higher tie-breaker switches to
// controlling.
func TestRoleConflictBothControlledHigherSwitches(t *testing.T) {
	a := newTestAgentForSelector(t, false, 20)
	m := buildRoleAttrMessage(t, false, 10)

	local := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	ok := a.handleRoleConflict(m, local, remote)

	assert.True(t, ok)
	assert.True(t, a.isControlling)
}

// No conflicting role attribute present: handleRoleConflict is a no-op.
func TestRoleConflictNoAttributeIsNoop(t *testing.T) {
	a := newTestAgentForSelector(t, true, 10)
	m, err := stun.Build(stun.BindingRequest, stun.Fingerprint)
	if err != nil {
		t.Fatalf("failed to build message: %v", err)
	}

	local := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	ok := a.handleRoleConflict(m, local, remote)

	assert.True(t, ok)
	assert.True(t, a.isControlling)
}

func TestLiteSelectorContactCandidatesIsNoop(t *testing.T) {
	a := newTestAgentForSelector(t, true, 1)
	lite := &liteSelector{pairCandidateSelector: a.selector}

	assert.NotPanics(t, func() { lite.ContactCandidates() })
}
