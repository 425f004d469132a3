package stun

import "crypto/rand"

// Randomizer supplies transaction-id entropy. It is a capability hook like
// IntegrityComputer/FingerprintComputer (spec.md §9): the default reads
// crypto/rand, but a caller wanting deterministic transaction IDs in tests
// can swap it.
type Randomizer interface {
	Read(b []byte) (int, error)
}

type cryptoRandomizer struct{}

func (cryptoRandomizer) Read(b []byte) (int, error) { return rand.Read(b) }

// defaultRandomizer is the crypto/rand backed implementation used unless a
// caller installs another one via SetRandomizer.
var defaultRandomizer Randomizer = cryptoRandomizer{}

// SetRandomizer overrides the source of transaction-id entropy, chiefly for
// deterministic tests.
func SetRandomizer(r Randomizer) {
	if r == nil {
		r = cryptoRandomizer{}
	}
	defaultRandomizer = r
}

func randRead(b []byte) {
	if _, err := defaultRandomizer.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable, which this agent cannot recover from.
		panic("stun: random source failed: " + err.Error())
	}
}
