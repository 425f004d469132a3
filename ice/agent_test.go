package ice

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/udpmesh/ice/logging"
)

// newConnectedTestAgentPair builds two host-only, UDP4, trickle-mode agents
// (host candidates come from the non-loopback interfaces), wires each one's
// OnCandidate handler to feed the other's
// AddRemoteCandidate, and starts connectivity checks with opposite roles.
// It returns once both agents report ConnectionStateConnected, or fails the
// test if that doesn't happen within the timeout.
func newConnectedTestAgentPair(t *testing.T) (controlling, controlled *Agent) {
	t.Helper()

	newHostOnlyAgent := func() *Agent {
		a, err := NewAgent(&AgentConfig{
			NetworkTypes:     []NetworkType{NetworkTypeUDP4},
			CandidateTypes:   []CandidateType{CandidateTypeHost},
			MulticastDNSMode: MulticastDNSModeDisabled,
			Trickle:          true,
		})
		require.NoError(t, err)
		return a
	}

	aAgent := newHostOnlyAgent()
	bAgent := newHostOnlyAgent()
	t.Cleanup(func() {
		_ = aAgent.Close()
		_ = bAgent.Close()
	})

	require.NoError(t, aAgent.OnCandidate(func(c Candidate) {
		if c != nil {
			require.NoError(t, bAgent.AddRemoteCandidate(c))
		}
	}))
	require.NoError(t, bAgent.OnCandidate(func(c Candidate) {
		if c != nil {
			require.NoError(t, aAgent.AddRemoteCandidate(c))
		}
	}))

	aConnected := make(chan struct{})
	bConnected := make(chan struct{})
	require.NoError(t, aAgent.OnConnectionStateChange(func(s ConnectionState) {
		if s == ConnectionStateConnected {
			close(aConnected)
		}
	}))
	require.NoError(t, bAgent.OnConnectionStateChange(func(s ConnectionState) {
		if s == ConnectionStateConnected {
			close(bConnected)
		}
	}))

	require.NoError(t, aAgent.GatherCandidates())
	require.NoError(t, bAgent.GatherCandidates())

	aUfrag, aPwd := aAgent.GetLocalUserCredentials()
	bUfrag, bPwd := bAgent.GetLocalUserCredentials()

	require.NoError(t, aAgent.startConnectivityChecks(true, bUfrag, bPwd))
	require.NoError(t, bAgent.startConnectivityChecks(false, aUfrag, aPwd))

	const timeout = 10 * time.Second
	select {
	case <-aConnected:
	case <-time.After(timeout):
		t.Fatal("controlling agent never reached ConnectionStateConnected")
	}
	select {
	case <-bConnected:
	case <-time.After(timeout):
		t.Fatal("controlled agent never reached ConnectionStateConnected")
	}

	return aAgent, bAgent
}

// Two in-process agents must be able to negotiate a candidate pair and
// exchange application data over it once ConnectionStateConnected fires on
// both sides.
func TestAgentConnectsAndExchangesData(t *testing.T) {
	aAgent, bAgent := newConnectedTestAgentPair(t)

	aPair := aAgent.getSelectedPair()
	bPair := bAgent.getSelectedPair()
	require.NotNil(t, aPair)
	require.NotNil(t, bPair)

	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}

	n, err := aPair.local.writeTo(payload, aPair.remote)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	require.NoError(t, bAgent.buffer.SetReadDeadline(time.Now().Add(5*time.Second)))
	got := make([]byte, len(payload))
	n, err = bAgent.buffer.Read(got)
	require.NoError(t, err)
	assert.Equal(t, payload, got[:n])
}

// RFC 8445 §7.3.1.1: if both sides start out ICE-controlling (the
// simultaneous-offer/glare case), the agent-level role-conflict resolution
// must still converge to a single controlling side and reach Connected,
// with the higher tie-breaker value staying controlling.
func TestAgentSimultaneousControllingResolvesByTieBreaker(t *testing.T) {
	newHostOnlyAgent := func() *Agent {
		a, err := NewAgent(&AgentConfig{
			NetworkTypes:     []NetworkType{NetworkTypeUDP4},
			CandidateTypes:   []CandidateType{CandidateTypeHost},
			MulticastDNSMode: MulticastDNSModeDisabled,
			Trickle:          true,
		})
		require.NoError(t, err)
		return a
	}

	aAgent := newHostOnlyAgent()
	bAgent := newHostOnlyAgent()
	t.Cleanup(func() {
		_ = aAgent.Close()
		_ = bAgent.Close()
	})

	// Force a deterministic tie-break: aAgent has the higher value, so it
	// must be the side left controlling once the conflict resolves.
	require.NoError(t, aAgent.run(func(agent *Agent) { agent.tieBreaker = 20 }))
	require.NoError(t, bAgent.run(func(agent *Agent) { agent.tieBreaker = 10 }))

	require.NoError(t, aAgent.OnCandidate(func(c Candidate) {
		if c != nil {
			require.NoError(t, bAgent.AddRemoteCandidate(c))
		}
	}))
	require.NoError(t, bAgent.OnCandidate(func(c Candidate) {
		if c != nil {
			require.NoError(t, aAgent.AddRemoteCandidate(c))
		}
	}))

	aConnected := make(chan struct{})
	bConnected := make(chan struct{})
	require.NoError(t, aAgent.OnConnectionStateChange(func(s ConnectionState) {
		if s == ConnectionStateConnected {
			close(aConnected)
		}
	}))
	require.NoError(t, bAgent.OnConnectionStateChange(func(s ConnectionState) {
		if s == ConnectionStateConnected {
			close(bConnected)
		}
	}))

	require.NoError(t, aAgent.GatherCandidates())
	require.NoError(t, bAgent.GatherCandidates())

	aUfrag, aPwd := aAgent.GetLocalUserCredentials()
	bUfrag, bPwd := bAgent.GetLocalUserCredentials()

	// Both sides start out ICE-controlling, simulating simultaneous offers
	// that each believe they won the role assignment.
	require.NoError(t, aAgent.startConnectivityChecks(true, bUfrag, bPwd))
	require.NoError(t, bAgent.startConnectivityChecks(true, aUfrag, aPwd))

	const timeout = 10 * time.Second
	select {
	case <-aConnected:
	case <-time.After(timeout):
		t.Fatal("agent a never reached ConnectionStateConnected")
	}
	select {
	case <-bConnected:
	case <-time.After(timeout):
		t.Fatal("agent b never reached ConnectionStateConnected")
	}

	resultCh := make(chan bool, 2)
	require.NoError(t, aAgent.run(func(agent *Agent) { resultCh <- agent.isControlling }))
	require.NoError(t, bAgent.run(func(agent *Agent) { resultCh <- agent.isControlling }))
	first := <-resultCh
	second := <-resultCh

	// Exactly one of the two ended up controlling: the one with the higher
	// tie-breaker (aAgent, at 20).
	assert.True(t, first != second, "exactly one agent must remain controlling after the conflict resolves")

	var aIsControlling bool
	require.NoError(t, aAgent.run(func(agent *Agent) { aIsControlling = agent.isControlling }))
	assert.True(t, aIsControlling, "the higher tie-breaker (agent a) must stay controlling")
}

// RFC 8445 doesn't mandate a specific local port, but when a configured
// PortMin/PortMax range has no free port left, listenUDPInPortRange must
// return ErrPort instead of silently falling back to an ephemeral port
// outside the configured range.
func TestListenUDPInPortRangeExhausted(t *testing.T) {
	n := NewNet()
	log := logging.NewDefaultLoggerFactory().NewLogger("test")

	// Grab an ephemeral port first, then configure the range to contain
	// only that exact port: the range is now provably exhausted before
	// listenUDPInPortRange ever tries it.
	held, err := n.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = held.Close() })

	heldPort := held.LocalAddr().(*net.UDPAddr).Port

	_, err = listenUDPInPortRange(n, log, heldPort, heldPort, "udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	assert.ErrorIs(t, err, ErrPort)
}
