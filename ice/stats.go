package ice

import "time"

// CandidatePairStats contains the stats related to a candidate pair,
// loosely mirroring the W3C webrtc-stats RTCIceCandidatePairStats fields
// this agent actually tracks.
type CandidatePairStats struct {
	Timestamp         time.Time
	LocalCandidateID  string
	RemoteCandidateID string
	State             CandidatePairState
	Nominated         bool
}

// CandidateStats contains the stats related to a single candidate.
type CandidateStats struct {
	Timestamp     time.Time
	ID            string
	NetworkType   NetworkType
	IP            string
	Port          int
	CandidateType CandidateType
	Priority      uint32
	RelayProtocol string
}
