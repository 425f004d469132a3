package ice

import "fmt"

// CandidateRelatedAddress describes the base address a reflexive or relayed
// candidate was derived from (RFC 8445 §5.1.1's "related address/port").
type CandidateRelatedAddress struct {
	Address string
	Port    int
}

// String renders the related-address clause the way candidateBase.String
// appends it, or the empty string when there's no related address.
func (r *CandidateRelatedAddress) String() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf(" related %s:%d", r.Address, r.Port)
}

// Equal reports whether two related addresses (nil-safe) refer to the same
// address and port.
func (r *CandidateRelatedAddress) Equal(other *CandidateRelatedAddress) bool {
	if r == nil && other == nil {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return *r == *other
}
