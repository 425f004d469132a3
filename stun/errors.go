package stun

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the ways decoding or authenticating a STUN
// message can fail (spec.md §7).
type ErrorKind int

// Error kinds returned by Decode and by MessageIntegrity.Check and Check.
const (
	_ ErrorKind = iota
	// ErrMalformed indicates the wire bytes are not a well-formed STUN
	// message: bad magic cookie, truncated header/attribute or an
	// attribute that overruns the declared body length.
	ErrMalformed
	// ErrUnknownRequired indicates the message carries one or more
	// comprehension-required attributes (type < 0x8000) this decoder
	// does not recognize; callers must reply 420 listing them.
	ErrUnknownRequired
	// ErrIntegrityMissing indicates the caller required MESSAGE-INTEGRITY
	// but the message did not carry one.
	ErrIntegrityMissing
	// ErrIntegrityMismatch indicates MESSAGE-INTEGRITY was present but did
	// not verify against the supplied key.
	ErrIntegrityMismatch
)

// DecodeError is returned by Message.Decode.
type DecodeError struct {
	Kind    ErrorKind
	Reason  string
	Unknown []AttrType
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case ErrUnknownRequired:
		return fmt.Sprintf("stun: unknown comprehension-required attributes: %v", e.Unknown)
	default:
		return fmt.Sprintf("stun: malformed message: %s", e.Reason)
	}
}

// Is supports errors.Is(err, stun.ErrMalformedMessage) style checks against
// the sentinel kind values below.
func (e *DecodeError) Is(target error) bool {
	var sentinel *kindSentinel
	if errors.As(target, &sentinel) {
		return sentinel.kind == e.Kind
	}
	return false
}

type kindSentinel struct{ kind ErrorKind }

func (s *kindSentinel) Error() string { return fmt.Sprintf("stun error kind %d", s.kind) }

// Sentinels usable with errors.Is against a *DecodeError or
// *IntegrityError.
var (
	ErrMalformedMessage    = &kindSentinel{ErrMalformed}
	ErrUnknownRequiredAttr = &kindSentinel{ErrUnknownRequired}
	ErrIntegrityIsMissing  = &kindSentinel{ErrIntegrityMissing}
	ErrIntegrityIsWrong    = &kindSentinel{ErrIntegrityMismatch}
)

// IntegrityError is returned by MessageIntegrity.Check and by the
// package-level FINGERPRINT Check.
type IntegrityError struct {
	Kind   ErrorKind
	Reason string
}

func (e *IntegrityError) Error() string { return "stun: " + e.Reason }

func (e *IntegrityError) Is(target error) bool {
	var sentinel *kindSentinel
	if errors.As(target, &sentinel) {
		return sentinel.kind == e.Kind
	}
	return false
}
