package ice

import (
	"net"
	"strings"
)

// externalIPMapper rewrites locally-gathered addresses to the public IP of
// a 1:1 NAT (e.g. an EC2 instance's public IP), sparing the agent a round
// trip to a STUN server to learn it (RFC 8445 §5.1.1.1 allows this as an
// alternative to "let a STUN server tell you").
type externalIPMapper struct {
	candidateType CandidateType

	// ipSole is used when every NAT1To1IPs entry is a bare external IP
	// (no "external/internal" pairing): every local address maps to it.
	ipSole net.IP

	// ipMap maps internal IP string -> external net.IP, used when entries
	// are given as "external/internal" pairs.
	ipMap map[string]net.IP
}

// newExternalIPMapper builds an externalIPMapper from AgentConfig's
// NAT1To1IPCandidateType/NAT1To1IPs. Returns (nil, nil) if ips is empty:
// the feature is simply unused.
func newExternalIPMapper(candidateType CandidateType, ips []string) (*externalIPMapper, error) {
	if len(ips) == 0 {
		return nil, nil
	}

	if candidateType == 0 {
		candidateType = CandidateTypeHost
	}
	if candidateType != CandidateTypeHost && candidateType != CandidateTypeServerReflexive {
		return nil, ErrUnsupportedNAT1To1IPCandidateType
	}

	m := &externalIPMapper{candidateType: candidateType, ipMap: map[string]net.IP{}}

	for _, entry := range ips {
		parts := strings.SplitN(entry, "/", 2)
		switch len(parts) {
		case 1:
			ip := net.ParseIP(parts[0])
			if ip == nil {
				return nil, ErrInvalidNAT1To1IPMapping
			}
			if m.ipSole != nil || len(m.ipMap) > 0 {
				return nil, ErrInvalidNAT1To1IPMapping
			}
			m.ipSole = ip
		case 2:
			extIP := net.ParseIP(parts[0])
			intIP := net.ParseIP(parts[1])
			if extIP == nil || intIP == nil {
				return nil, ErrInvalidNAT1To1IPMapping
			}
			if m.ipSole != nil {
				return nil, ErrInvalidNAT1To1IPMapping
			}
			m.ipMap[intIP.String()] = extIP
		}
	}

	return m, nil
}

// findExternalIP returns the external IP mapped for localIP.
func (m *externalIPMapper) findExternalIP(localIP string) (net.IP, error) {
	if m.ipSole != nil {
		return m.ipSole, nil
	}
	if ip, ok := m.ipMap[localIP]; ok {
		return ip, nil
	}
	return nil, ErrExternalMappedIPNotFound
}
