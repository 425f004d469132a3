package ice

// CandidatePeerReflexive is a candidate discovered mid-checklist, from the
// source address a peer's connectivity check arrived from that didn't
// match any known remote candidate (RFC 8445 §7.2.5.3.1).
type CandidatePeerReflexive struct {
	candidateBase
}

// CandidatePeerReflexiveConfig is the config required to create a new CandidatePeerReflexive
type CandidatePeerReflexiveConfig struct {
	CandidateID string
	Network     string
	Address     string
	Port        int
	Component   uint16
	RelAddr     string
	RelPort     int
}

// NewCandidatePeerReflexive creates a new peer reflective candidate
func NewCandidatePeerReflexive(config *CandidatePeerReflexiveConfig) (*CandidatePeerReflexive, error) {
	base, err := resolvedCandidateBase(config.CandidateID, config.Network, config.Address, config.Port,
		CandidateTypePeerReflexive, config.Component,
		&CandidateRelatedAddress{Address: config.RelAddr, Port: config.RelPort})
	if err != nil {
		return nil, err
	}

	return &CandidatePeerReflexive{candidateBase: base}, nil
}
