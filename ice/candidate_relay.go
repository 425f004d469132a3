package ice

// CandidateRelay is a candidate obtained from a TURN allocation (RFC 8656):
// its transport address is the relay's own, and its related address is the
// client-side address the TURN allocation was made from.
type CandidateRelay struct {
	candidateBase

	onClose func() error
}

// CandidateRelayConfig is the config required to create a new CandidateRelay
type CandidateRelayConfig struct {
	CandidateID string
	Network     string
	Address     string
	Port        int
	Component   uint16
	RelAddr     string
	RelPort     int
	OnClose     func() error
}

// NewCandidateRelay creates a new relay candidate
func NewCandidateRelay(config *CandidateRelayConfig) (*CandidateRelay, error) {
	base, err := resolvedCandidateBase(config.CandidateID, config.Network, config.Address, config.Port,
		CandidateTypeRelay, config.Component,
		&CandidateRelatedAddress{Address: config.RelAddr, Port: config.RelPort})
	if err != nil {
		return nil, err
	}

	return &CandidateRelay{
		candidateBase: base,
		onClose:       config.OnClose,
	}, nil
}

// close releases the underlying socket and, since a relay candidate stands
// for a TURN allocation rather than a bare socket, tears down the
// allocation (and its TURN client) through onClose.
func (c *CandidateRelay) close() error {
	err := c.candidateBase.close()
	if c.onClose != nil {
		err = c.onClose()
		c.onClose = nil
	}
	return err
}
