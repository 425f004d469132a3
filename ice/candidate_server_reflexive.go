//nolint:dupl
package ice

// CandidateServerReflexive is a candidate discovered from the mapped
// address a STUN server reported for us (RFC 8445 §5.1.1).
type CandidateServerReflexive struct {
	candidateBase
}

// CandidateServerReflexiveConfig is the config required to create a new
// CandidateServerReflexive.
type CandidateServerReflexiveConfig struct {
	CandidateID string
	Network     string
	Address     string
	Port        int
	Component   uint16
	RelAddr     string
	RelPort     int
}

// NewCandidateServerReflexive creates a new server reflexive candidate.
func NewCandidateServerReflexive(config *CandidateServerReflexiveConfig) (*CandidateServerReflexive, error) {
	base, err := resolvedCandidateBase(config.CandidateID, config.Network, config.Address, config.Port,
		CandidateTypeServerReflexive, config.Component,
		&CandidateRelatedAddress{Address: config.RelAddr, Port: config.RelPort})
	if err != nil {
		return nil, err
	}

	return &CandidateServerReflexive{candidateBase: base}, nil
}
