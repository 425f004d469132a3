package stun

import (
	"encoding/binary"
	"fmt"
)

// AttrType is the 16-bit STUN/TURN attribute type code.
type AttrType uint16

// Attribute type codes handled by this codec (spec.md §4.1).
const (
	AttrMappedAddress     AttrType = 0x0001
	AttrUsername          AttrType = 0x0006
	AttrMessageIntegrity  AttrType = 0x0008
	AttrErrorCode         AttrType = 0x0009
	AttrUnknownAttributes AttrType = 0x000A
	AttrChannelNumber     AttrType = 0x000C
	AttrLifetime          AttrType = 0x000D
	AttrXORPeerAddress    AttrType = 0x0012
	AttrData              AttrType = 0x0013
	AttrRealm             AttrType = 0x0014
	AttrNonce             AttrType = 0x0015
	AttrXORRelayedAddress AttrType = 0x0016
	AttrRequestedTransport AttrType = 0x0019
	AttrDontFragment      AttrType = 0x001A
	AttrXORMappedAddress  AttrType = 0x0020
	AttrPriority          AttrType = 0x0024
	AttrUseCandidate      AttrType = 0x0025
	AttrSoftware          AttrType = 0x8022
	AttrFingerprint       AttrType = 0x8028
	AttrICEControlled     AttrType = 0x8029
	AttrICEControlling    AttrType = 0x802A
)

var knownAttrs = map[AttrType]string{
	AttrMappedAddress:      "MAPPED-ADDRESS",
	AttrUsername:           "USERNAME",
	AttrMessageIntegrity:   "MESSAGE-INTEGRITY",
	AttrErrorCode:          "ERROR-CODE",
	AttrUnknownAttributes:  "UNKNOWN-ATTRIBUTES",
	AttrChannelNumber:      "CHANNEL-NUMBER",
	AttrLifetime:           "LIFETIME",
	AttrXORPeerAddress:     "XOR-PEER-ADDRESS",
	AttrData:               "DATA",
	AttrRealm:              "REALM",
	AttrNonce:              "NONCE",
	AttrXORRelayedAddress:  "XOR-RELAYED-ADDRESS",
	AttrRequestedTransport: "REQUESTED-TRANSPORT",
	AttrDontFragment:       "DONT-FRAGMENT",
	AttrXORMappedAddress:   "XOR-MAPPED-ADDRESS",
	AttrPriority:           "PRIORITY",
	AttrUseCandidate:       "USE-CANDIDATE",
	AttrSoftware:           "SOFTWARE",
	AttrFingerprint:        "FINGERPRINT",
	AttrICEControlled:      "ICE-CONTROLLED",
	AttrICEControlling:     "ICE-CONTROLLING",
}

func (t AttrType) isKnown() bool {
	_, ok := knownAttrs[t]
	return ok
}

func (t AttrType) String() string {
	if s, ok := knownAttrs[t]; ok {
		return s
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Username is the USERNAME attribute.
type Username string

// AddTo implements Setter.
func (u Username) AddTo(m *Message) error {
	m.Add(AttrUsername, []byte(u))
	return nil
}

// GetFrom implements Getter.
func (u *Username) GetFrom(m *Message) error {
	a, ok := m.Get(AttrUsername)
	if !ok {
		return errAttrNotFound(AttrUsername)
	}
	*u = Username(a.Value)
	return nil
}

// Realm is the REALM attribute.
type Realm string

// AddTo implements Setter.
func (r Realm) AddTo(m *Message) error {
	m.Add(AttrRealm, []byte(r))
	return nil
}

// GetFrom implements Getter.
func (r *Realm) GetFrom(m *Message) error {
	a, ok := m.Get(AttrRealm)
	if !ok {
		return errAttrNotFound(AttrRealm)
	}
	*r = Realm(a.Value)
	return nil
}

// Nonce is the NONCE attribute.
type Nonce string

// AddTo implements Setter.
func (n Nonce) AddTo(m *Message) error {
	m.Add(AttrNonce, []byte(n))
	return nil
}

// GetFrom implements Getter.
func (n *Nonce) GetFrom(m *Message) error {
	a, ok := m.Get(AttrNonce)
	if !ok {
		return errAttrNotFound(AttrNonce)
	}
	*n = Nonce(a.Value)
	return nil
}

// Software is the SOFTWARE attribute.
type Software string

// AddTo implements Setter.
func (s Software) AddTo(m *Message) error {
	m.Add(AttrSoftware, []byte(s))
	return nil
}

// Priority is the PRIORITY attribute carried on connectivity checks.
type Priority uint32

// AddTo implements Setter.
func (p Priority) AddTo(m *Message) error {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(p))
	m.Add(AttrPriority, v[:])
	return nil
}

// GetFrom implements Getter.
func (p *Priority) GetFrom(m *Message) error {
	a, ok := m.Get(AttrPriority)
	if !ok {
		return errAttrNotFound(AttrPriority)
	}
	if len(a.Value) != 4 {
		return &DecodeError{Kind: ErrMalformed, Reason: "PRIORITY must be 4 bytes"}
	}
	*p = Priority(binary.BigEndian.Uint32(a.Value))
	return nil
}

type flagAttr struct{ t AttrType }

func (f flagAttr) AddTo(m *Message) error {
	m.Add(f.t, nil)
	return nil
}

// UseCandidate is the USE-CANDIDATE attribute, a zero-length flag.
var UseCandidate Setter = flagAttr{AttrUseCandidate}

// DontFragment is the DONT-FRAGMENT attribute, a zero-length flag.
var DontFragment Setter = flagAttr{AttrDontFragment}

// ICEControlled carries the sender's tie-breaker while controlled.
type ICEControlled uint64

// AddTo implements Setter.
func (c ICEControlled) AddTo(m *Message) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(c))
	m.Add(AttrICEControlled, v[:])
	return nil
}

// GetFrom implements Getter.
func (c *ICEControlled) GetFrom(m *Message) error {
	a, ok := m.Get(AttrICEControlled)
	if !ok {
		return errAttrNotFound(AttrICEControlled)
	}
	if len(a.Value) != 8 {
		return &DecodeError{Kind: ErrMalformed, Reason: "ICE-CONTROLLED must be 8 bytes"}
	}
	*c = ICEControlled(binary.BigEndian.Uint64(a.Value))
	return nil
}

// ICEControlling carries the sender's tie-breaker while controlling.
type ICEControlling uint64

// AddTo implements Setter.
func (c ICEControlling) AddTo(m *Message) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(c))
	m.Add(AttrICEControlling, v[:])
	return nil
}

// GetFrom implements Getter.
func (c *ICEControlling) GetFrom(m *Message) error {
	a, ok := m.Get(AttrICEControlling)
	if !ok {
		return errAttrNotFound(AttrICEControlling)
	}
	if len(a.Value) != 8 {
		return &DecodeError{Kind: ErrMalformed, Reason: "ICE-CONTROLLING must be 8 bytes"}
	}
	*c = ICEControlling(binary.BigEndian.Uint64(a.Value))
	return nil
}

// ErrorCodeAttribute is the ERROR-CODE attribute: class*100+number plus a
// UTF-8 reason phrase.
type ErrorCodeAttribute struct {
	Code   int
	Reason string
}

// AddTo implements Setter.
func (e ErrorCodeAttribute) AddTo(m *Message) error {
	v := make([]byte, 4+len(e.Reason))
	v[2] = byte(e.Code / 100)
	v[3] = byte(e.Code % 100)
	copy(v[4:], e.Reason)
	m.Add(AttrErrorCode, v)
	return nil
}

// GetFrom implements Getter.
func (e *ErrorCodeAttribute) GetFrom(m *Message) error {
	a, ok := m.Get(AttrErrorCode)
	if !ok {
		return errAttrNotFound(AttrErrorCode)
	}
	if len(a.Value) < 4 {
		return &DecodeError{Kind: ErrMalformed, Reason: "ERROR-CODE too short"}
	}
	e.Code = int(a.Value[2])*100 + int(a.Value[3])
	e.Reason = string(a.Value[4:])
	return nil
}

// Common TURN/ICE error codes.
const (
	CodeUnauthorized     = 401
	CodeStaleNonce       = 438
	CodeRoleConflict     = 487
	CodeUnknownAttribute = 420
	CodeBadRequest       = 400
)

// UnknownAttributes is the UNKNOWN-ATTRIBUTES attribute sent back with a
// 420 error response.
type UnknownAttributes []AttrType

// AddTo implements Setter.
func (u UnknownAttributes) AddTo(m *Message) error {
	v := make([]byte, len(u)*2)
	for i, t := range u {
		binary.BigEndian.PutUint16(v[i*2:i*2+2], uint16(t))
	}
	m.Add(AttrUnknownAttributes, v)
	return nil
}

// RequestedTransport is the REQUESTED-TRANSPORT attribute (TURN Allocate).
type RequestedTransport struct{ Protocol byte }

// ProtoUDP is the RFC-defined protocol number for UDP.
const ProtoUDP = 17

// AddTo implements Setter.
func (r RequestedTransport) AddTo(m *Message) error {
	m.Add(AttrRequestedTransport, []byte{r.Protocol, 0, 0, 0})
	return nil
}

// Lifetime is the LIFETIME attribute, seconds.
type Lifetime uint32

// AddTo implements Setter.
func (l Lifetime) AddTo(m *Message) error {
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], uint32(l))
	m.Add(AttrLifetime, v[:])
	return nil
}

// GetFrom implements Getter.
func (l *Lifetime) GetFrom(m *Message) error {
	a, ok := m.Get(AttrLifetime)
	if !ok {
		return errAttrNotFound(AttrLifetime)
	}
	if len(a.Value) != 4 {
		return &DecodeError{Kind: ErrMalformed, Reason: "LIFETIME must be 4 bytes"}
	}
	*l = Lifetime(binary.BigEndian.Uint32(a.Value))
	return nil
}

// ChannelNumber is the CHANNEL-NUMBER attribute (TURN ChannelBind).
type ChannelNumber uint16

// AddTo implements Setter.
func (c ChannelNumber) AddTo(m *Message) error {
	m.Add(AttrChannelNumber, []byte{byte(c >> 8), byte(c), 0, 0})
	return nil
}

// GetFrom implements Getter.
func (c *ChannelNumber) GetFrom(m *Message) error {
	a, ok := m.Get(AttrChannelNumber)
	if !ok {
		return errAttrNotFound(AttrChannelNumber)
	}
	if len(a.Value) < 2 {
		return &DecodeError{Kind: ErrMalformed, Reason: "CHANNEL-NUMBER too short"}
	}
	*c = ChannelNumber(binary.BigEndian.Uint16(a.Value[:2]))
	return nil
}

// Data is the DATA attribute carrying a relayed application payload.
type Data []byte

// AddTo implements Setter.
func (d Data) AddTo(m *Message) error {
	m.Add(AttrData, d)
	return nil
}

// GetFrom implements Getter.
func (d *Data) GetFrom(m *Message) error {
	a, ok := m.Get(AttrData)
	if !ok {
		return errAttrNotFound(AttrData)
	}
	*d = a.Value
	return nil
}

func errAttrNotFound(t AttrType) error {
	return &DecodeError{Kind: ErrMalformed, Reason: fmt.Sprintf("%s not present", t)}
}
