package ice

import (
	"net"
	"time"

	"github.com/udpmesh/ice/logging"
	"github.com/udpmesh/ice/stun"
)

// pairCandidateSelector embodies the behavior that differs between a
// controlling and a controlled agent (RFC 8445 §7.3): who drives nomination
// of the candidate pair that ends up selected, and how role conflicts
// discovered mid-checklist are resolved.
type pairCandidateSelector interface {
	Start()
	ContactCandidates()
	PingCandidate(local, remote Candidate)
	HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr)
	HandleBindingRequest(m *stun.Message, local, remote Candidate)
}

func isNominatable(agent *Agent, start time.Time, c Candidate) bool {
	since := time.Since(start)
	switch c.Type() {
	case CandidateTypeHost:
		return since > agent.hostAcceptanceMinWait
	case CandidateTypeServerReflexive:
		return since > agent.srflxAcceptanceMinWait
	case CandidateTypePeerReflexive:
		return since > agent.prflxAcceptanceMinWait
	case CandidateTypeRelay:
		return since > agent.relayAcceptanceMinWait
	default:
		return false
	}
}

// bindingRequestAttrs assembles the attributes of a connectivity-check
// Binding request (RFC 8445 §7.2.4): USERNAME, PRIORITY, the role attribute
// carrying this agent's tie-breaker, USE-CANDIDATE when nominating, and the
// authentication trailer.
func bindingRequestAttrs(agent *Agent, local Candidate, useCandidate bool) []stun.Setter {
	attrs := []stun.Setter{
		stun.BindingRequest,
		stun.Username(agent.remoteUfrag + ":" + agent.localUfrag),
		stun.Priority(local.Priority()),
	}
	if agent.isControlling {
		attrs = append(attrs, stun.ICEControlling(agent.tieBreaker))
		if useCandidate {
			attrs = append(attrs, stun.UseCandidate)
		}
	} else {
		attrs = append(attrs, stun.ICEControlled(agent.tieBreaker))
	}
	return append(attrs, stun.NewShortTermIntegrity(agent.remotePwd), stun.Fingerprint)
}

func addrEqual(a, b net.Addr) bool {
	aIP, aPort, err := addrIPAndPort(a)
	if err != nil {
		return false
	}
	bIP, bPort, err := addrIPAndPort(b)
	if err != nil {
		return false
	}
	return aPort == bPort && aIP.Equal(bIP)
}

func (a *Agent) sendSTUN(msg *stun.Message, local, remote Candidate) {
	if _, err := local.writeTo(msg.Raw, remote); err != nil {
		a.log.Tracef("failed to send STUN message: %s", err)
	}
}

// switchRole flips the agent's controlling/controlled role after a resolved
// role conflict (RFC 8445 §7.3.1.1) and installs the matching selector.
func (a *Agent) switchRole(controlling bool) {
	a.isControlling = controlling
	if controlling {
		a.selector = &controllingSelector{agent: a, log: a.log}
	} else {
		a.selector = &controlledSelector{agent: a, log: a.log}
	}
	if a.lite {
		a.selector = &liteSelector{pairCandidateSelector: a.selector}
	}
	a.selector.Start()
}

func (a *Agent) sendRoleConflict(m *stun.Message, local, remote Candidate) {
	out, err := stun.Build(m, stun.BindingError,
		stun.ErrorCodeAttribute{Code: stun.CodeRoleConflict},
		stun.Fingerprint,
	)
	if err != nil {
		a.log.Warnf("Failed to build role conflict response: %s", err)
		return
	}
	a.sendSTUN(out, local, remote)
}

// handleRoleConflict runs the tie-break algorithm of RFC 8445 §7.3.1.1
// against an inbound Binding request. It returns false when the request
// lost the tie-break and was answered with a 487 (Role Conflict) error,
// meaning the caller must stop processing it; true otherwise, whether or
// not a role switch happened.
func (a *Agent) handleRoleConflict(m *stun.Message, local, remote Candidate) bool {
	switch {
	case a.isControlling && m.Contains(stun.AttrICEControlling):
		var remoteTieBreaker stun.ICEControlling
		if err := remoteTieBreaker.GetFrom(m); err != nil {
			return false
		}
		if a.tieBreaker >= uint64(remoteTieBreaker) {
			a.sendRoleConflict(m, local, remote)
			return false
		}
		a.log.Debug("Switching to controlled mode due to role conflict")
		a.switchRole(false)
	case !a.isControlling && m.Contains(stun.AttrICEControlled):
		var remoteTieBreaker stun.ICEControlled
		if err := remoteTieBreaker.GetFrom(m); err != nil {
			return false
		}
		if a.tieBreaker < uint64(remoteTieBreaker) {
			a.sendRoleConflict(m, local, remote)
			return false
		}
		a.log.Debug("Switching to controlling mode due to role conflict")
		a.switchRole(true)
	}
	return true
}

// controllingSelector drives nomination: it pings the checklist until a
// pair is both valid and past its type's acceptance wait, then nominates it
// by resending the ping with USE-CANDIDATE set (RFC 8445 §8.1.1, "regular
// nomination").
type controllingSelector struct {
	agent         *Agent
	log           logging.LeveledLogger
	startTime     time.Time
	nominatedPair *candidatePair
}

func (s *controllingSelector) Start() {
	s.startTime = time.Now()
	s.nominatedPair = nil
}

func (s *controllingSelector) isNominatable(c Candidate) bool {
	return isNominatable(s.agent, s.startTime, c)
}

func (s *controllingSelector) ContactCandidates() {
	switch {
	case s.agent.getSelectedPair() != nil:
		if s.agent.validateSelectedPair() {
			s.log.Trace("checking keepalive")
			s.agent.checkKeepalive()
		}
	case s.nominatedPair != nil:
		s.nominatePair(s.nominatedPair)
	default:
		if best := s.agent.getBestValidCandidatePair(); best != nil &&
			s.isNominatable(best.local) && s.isNominatable(best.remote) {
			s.log.Tracef("Nominatable pair found, nominating (%s, %s)", best.local, best.remote)
			s.nominatedPair = best
			s.nominatePair(best)
			return
		}
		s.agent.pingAllCandidates()
	}
}

func (s *controllingSelector) nominatePair(pair *candidatePair) {
	msg, err := stun.Build(bindingRequestAttrs(s.agent, pair.local, true)...)
	if err != nil {
		s.log.Warnf("Failed to build nomination request: %v", err)
		return
	}
	s.log.Tracef("ping STUN (nominate candidate pair) from %s to %s\n", pair.local, pair.remote)
	s.agent.sendBindingRequest(msg, pair.local, pair.remote)
}

func (s *controllingSelector) PingCandidate(local, remote Candidate) {
	msg, err := stun.Build(bindingRequestAttrs(s.agent, local, false)...)
	if err != nil {
		s.log.Warnf("Failed to build binding request: %v", err)
		return
	}
	s.agent.sendBindingRequest(msg, local, remote)
}

func (s *controllingSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	ok, pending := s.agent.handleInboundBindingSuccess(m.TransactionID)
	if !ok {
		s.log.Warnf("discard unexpected STUN success response from %s", remote)
		return
	}

	if !addrEqual(pending.destination, remoteAddr) {
		s.log.Debugf("discard message: transaction source and destination does not match expected(%s), actual(%s)", pending.destination, remoteAddr)
		return
	}

	s.log.Tracef("inbound STUN (SuccessResponse) from %s to %s", remote, local)
	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}
	p.state = CandidatePairStateSucceeded
	s.log.Tracef("Found valid candidate pair: %s", p)

	if pending.isUseCandidate && s.agent.getSelectedPair() == nil {
		s.agent.setSelectedPair(p)
	}
}

func (s *controllingSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	if !s.agent.handleRoleConflict(m, local, remote) {
		return
	}

	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}

	s.agent.sendBindingSuccess(m, local, remote)

	if p.state == CandidatePairStateSucceeded && s.nominatedPair == nil && s.agent.getSelectedPair() == nil {
		if best := s.agent.getBestAvailableCandidatePair(); best != nil && best.Equal(p) &&
			s.isNominatable(p.local) && s.isNominatable(p.remote) {
			s.log.Tracef("The candidate (%s, %s) is the best candidate available, marking it as nominated", p.local, p.remote)
			s.nominatedPair = p
			s.nominatePair(p)
		}
	}
}

// controlledSelector never initiates nomination; it accepts whichever pair
// the controlling agent marks with USE-CANDIDATE (RFC 8445 §7.3.1.5).
type controlledSelector struct {
	agent *Agent
	log   logging.LeveledLogger
}

func (s *controlledSelector) Start() {}

func (s *controlledSelector) ContactCandidates() {
	if s.agent.getSelectedPair() != nil {
		if s.agent.validateSelectedPair() {
			s.log.Trace("checking keepalive")
			s.agent.checkKeepalive()
		}
		return
	}
	s.agent.pingAllCandidates()
}

func (s *controlledSelector) PingCandidate(local, remote Candidate) {
	msg, err := stun.Build(bindingRequestAttrs(s.agent, local, false)...)
	if err != nil {
		s.log.Warnf("Failed to build binding request: %v", err)
		return
	}
	s.agent.sendBindingRequest(msg, local, remote)
}

func (s *controlledSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	ok, pending := s.agent.handleInboundBindingSuccess(m.TransactionID)
	if !ok {
		s.log.Warnf("discard unexpected STUN success response from %s", remote)
		return
	}

	if !addrEqual(pending.destination, remoteAddr) {
		s.log.Debugf("discard message: transaction source and destination does not match expected(%s), actual(%s)", pending.destination, remoteAddr)
		return
	}

	s.log.Tracef("inbound STUN (SuccessResponse) from %s to %s", remote, local)
	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}
	p.state = CandidatePairStateSucceeded
	s.log.Tracef("Found valid candidate pair: %s", p)

	// A controlled agent never selects a pair on a bare success response:
	// it waits for the triggered check carrying USE-CANDIDATE, handled in
	// HandleBindingRequest below.
}

func (s *controlledSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	if !s.agent.handleRoleConflict(m, local, remote) {
		return
	}

	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}

	s.agent.sendBindingSuccess(m, local, remote)

	if m.Contains(stun.AttrUseCandidate) && p.state == CandidatePairStateSucceeded {
		selectedPair := s.agent.getSelectedPair()
		if selectedPair == nil || !selectedPair.Equal(p) {
			s.agent.setSelectedPair(p)
		}
	}
}

// liteSelector wraps another selector for an ICE-lite agent (RFC 8445
// §2.6): a lite agent only ever responds, it never sends connectivity
// checks of its own, so ContactCandidates is a no-op regardless of role.
type liteSelector struct {
	pairCandidateSelector
}

func (s *liteSelector) ContactCandidates() {
	// A lite agent never initiates a connectivity check; it only answers
	// the checks the full agent on the other side of the pair sends.
}
