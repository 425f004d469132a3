package ice

import "fmt"

// CandidatePairState mirrors the checklist states of RFC 8445 §6.1.2.6.
type CandidatePairState byte

// CandidatePairState enum.
const (
	CandidatePairStateWaiting CandidatePairState = iota + 1
	CandidatePairStateInProgress
	CandidatePairStateFailed
	CandidatePairStateSucceeded
)

func (s CandidatePairState) String() string {
	switch s {
	case CandidatePairStateWaiting:
		return "waiting"
	case CandidatePairStateInProgress:
		return "in-progress"
	case CandidatePairStateFailed:
		return "failed"
	case CandidatePairStateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// candidatePair represents a pairing of local and remote candidates tested
// by connectivity checks. Pairs are held by a pairTable keyed on candidate
// ID, so appending a peer-reflexive candidate mid-check never invalidates
// an existing pair's identity.
type candidatePair struct {
	local  Candidate
	remote Candidate

	bindingRequestCount uint16
	state               CandidatePairState
	nominated           bool
}

func newCandidatePair(local, remote Candidate, controlling bool) *candidatePair {
	return &candidatePair{
		local:  local,
		remote: remote,
		state:  CandidatePairStateWaiting,
	}
}

// Priority computes the pair priority per RFC 8445 §6.1.2.3:
// 2^32*min(G,D) + 2*max(G,D) + (G>D ? 1 : 0), where G is the controlling
// agent's candidate priority and D the controlled agent's.
func (p *candidatePair) Priority() uint64 {
	var g, d uint64
	if p.local.agent() != nil && p.local.agent().isControlling {
		g = uint64(p.local.Priority())
		d = uint64(p.remote.Priority())
	} else {
		g = uint64(p.remote.Priority())
		d = uint64(p.local.Priority())
	}

	min, max := g, d
	if min > max {
		min, max = max, min
	}

	var extra uint64
	if g > d {
		extra = 1
	}

	return (min << 32) + 2*max + extra
}

func (p *candidatePair) String() string {
	return fmt.Sprintf("prio %d (local, prio %d) %s <-> %s (remote, prio %d)",
		p.Priority(), p.local.Priority(), p.local, p.remote, p.remote.Priority())
}

func (p *candidatePair) Equal(other *candidatePair) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.local.Equal(other.local) && p.remote.Equal(other.remote)
}

// pairKey identifies a candidatePair by its candidates' IDs, so pairTable
// can look up, insert, and deduplicate pairs in O(1) instead of scanning a
// slice on every add/find.
type pairKey struct {
	local  string
	remote string
}

// pairTable indexes the candidate pairs under consideration by an agent's
// checklist. Lookups by (local, remote) candidate are served off a map;
// the pairs are also kept in an insertion-order slice, which
// bestAvailable and bestValid scan to pick the highest-priority match
// (RFC 8445 §6.1.2.4 considers pairs from highest to lowest priority).
type pairTable struct {
	byKey map[pairKey]*candidatePair
	order []*candidatePair
}

func newPairTable() *pairTable {
	return &pairTable{byKey: make(map[pairKey]*candidatePair)}
}

func keyFor(local, remote Candidate) pairKey {
	return pairKey{local: local.ID(), remote: remote.ID()}
}

// add inserts a new pair for (local, remote) if one doesn't already exist,
// returning the existing pair otherwise.
func (t *pairTable) add(local, remote Candidate, controlling bool) *candidatePair {
	k := keyFor(local, remote)
	if existing, ok := t.byKey[k]; ok {
		return existing
	}

	p := newCandidatePair(local, remote, controlling)
	t.byKey[k] = p
	t.order = append(t.order, p)
	return p
}

func (t *pairTable) find(local, remote Candidate) *candidatePair {
	return t.byKey[keyFor(local, remote)]
}

// all returns every tracked pair in insertion order.
func (t *pairTable) all() []*candidatePair {
	return t.order
}

// bestAvailable returns the highest-priority pair that is still waiting or
// in progress, per RFC 8445 §6.1.4.2's "highest priority that is Waiting"
// check ordering (in-progress pairs are included so a re-check of a
// pending pair never loses to a lower-priority Waiting one).
func (t *pairTable) bestAvailable() *candidatePair {
	var best *candidatePair
	for _, p := range t.order {
		if p.state != CandidatePairStateWaiting && p.state != CandidatePairStateInProgress {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	return best
}

// bestValid returns the highest-priority pair in the Succeeded state.
func (t *pairTable) bestValid() *candidatePair {
	var best *candidatePair
	for _, p := range t.order {
		if p.state != CandidatePairStateSucceeded {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	return best
}
