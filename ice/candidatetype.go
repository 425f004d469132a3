package ice

import "fmt"

// CandidateType represents the type of candidate, per RFC 8445 §5.1.1.
type CandidateType byte

// CandidateType enum.
const (
	// CandidateTypeHost indicates the candidate is of Host type, locally
	// gathered from a network interface.
	CandidateTypeHost CandidateType = iota + 1

	// CandidateTypeServerReflexive indicates the candidate is of Server
	// Reflexive type, acquired from a STUN server.
	CandidateTypeServerReflexive

	// CandidateTypePeerReflexive indicates the candidate is of Peer
	// Reflexive type, discovered from the source address of a
	// connectivity check.
	CandidateTypePeerReflexive

	// CandidateTypeRelay indicates the candidate is of Relay type,
	// acquired from a TURN server.
	CandidateTypeRelay
)

// Preference returns the type preference used in the priority formula
// (RFC 8445 §5.1.2.1). Values are from the recommended default range.
func (c CandidateType) Preference() int {
	switch c {
	case CandidateTypeHost:
		return 126
	case CandidateTypePeerReflexive:
		return 110
	case CandidateTypeServerReflexive:
		return 100
	case CandidateTypeRelay:
		return 0
	default:
		return 0
	}
}

func (c CandidateType) String() string {
	switch c {
	case CandidateTypeHost:
		return "host"
	case CandidateTypeServerReflexive:
		return "srflx"
	case CandidateTypePeerReflexive:
		return "prflx"
	case CandidateTypeRelay:
		return "relay"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

func containsCandidateType(candidateType CandidateType, candidateTypeList []CandidateType) bool {
	if candidateTypeList == nil {
		return false
	}
	for _, ct := range candidateTypeList {
		if ct == candidateType {
			return true
		}
	}
	return false
}
