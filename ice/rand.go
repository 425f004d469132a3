package ice

import (
	"crypto/rand"
	"math/big"
)

const runesAlpha = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randSeq returns a random string of n characters, used to generate the
// default local ufrag/password when the caller doesn't supply one.
func randSeq(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(runesAlpha)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing means the OS entropy source is gone;
			// this agent has no fallback to offer.
			panic("ice: random source failed: " + err.Error())
		}
		b[i] = runesAlpha[idx.Int64()]
	}
	return string(b)
}

// generateRandString returns a random identifier of the form
// prefix+16-random-chars+suffix, used for candidate IDs and mDNS names.
func generateRandString(prefix, suffix string) (string, error) {
	return prefix + randSeq(16) + suffix, nil
}

func generateCandidateID() (string, error) {
	return generateRandString("candidate:", "")
}
