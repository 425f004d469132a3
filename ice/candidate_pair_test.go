package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHostCandidate(t *testing.T, address string, component uint16) *CandidateHost {
	t.Helper()
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:   "udp4",
		Address:   address,
		Port:      12345,
		Component: component,
	})
	require.NoError(t, err)
	return c
}

// Priority formula literal check against RFC 8445 §5.1.2.1.
func TestCandidatePriorityFormula(t *testing.T) {
	c := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	expected := (1<<24)*uint32(CandidateTypeHost.Preference()) +
		(1<<8)*uint32(defaultLocalPreference) +
		uint32(256-ComponentRTP)
	assert.Equal(t, expected, c.Priority())
}

// A pair's priority formula is symmetric under role swap: the controlling
// side's candidate always contributes the "G" term, so swapping which side
// is controlling while keeping the same two candidates swaps G and D but
// must yield the identical overall priority (RFC 8445 §6.1.2.3's formula is
// symmetric in G/D up to the tie-break bit, which only depends on G>D).
func TestCandidatePairPrioritySymmetric(t *testing.T) {
	local := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	controllingAgent := &Agent{isControlling: true}
	controlledAgent := &Agent{isControlling: false}
	local.candidateBase.currAgent = controllingAgent
	remote.candidateBase.currAgent = controlledAgent

	pair := newCandidatePair(local, remote, true)
	prioAsControlling := pair.Priority()

	local.candidateBase.currAgent = controlledAgent
	remote.candidateBase.currAgent = controllingAgent
	prioAsControlled := pair.Priority()

	assert.Equal(t, prioAsControlling, prioAsControlled)
}

func TestCandidatePairEqual(t *testing.T) {
	local := newTestHostCandidate(t, "10.0.0.1", ComponentRTP)
	remote := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)
	other := newTestHostCandidate(t, "10.0.0.2", ComponentRTP)

	p1 := newCandidatePair(local, remote, true)
	p2 := newCandidatePair(local, other, true)

	assert.True(t, p1.Equal(p2))
	assert.False(t, p1.Equal(nil))

	var nilPair *candidatePair
	assert.True(t, nilPair.Equal(nil))
}
