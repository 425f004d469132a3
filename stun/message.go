// Package stun implements encoding, decoding and authentication of STUN
// messages (RFC 5389/8489), including the MESSAGE-INTEGRITY and FINGERPRINT
// mechanisms used to authenticate ICE connectivity checks and TURN control
// messages.
package stun

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

const (
	magicCookie = 0x2112A442

	// TransactionIDSize is the size of a STUN transaction ID, in bytes.
	TransactionIDSize = 12

	messageHeaderSize   = 20
	attributeHeaderSize = 4
)

// MessageClass is the 2-bit class field of a STUN message type.
type MessageClass byte

// The four STUN message classes.
const (
	ClassRequest         MessageClass = 0x00
	ClassIndication      MessageClass = 0x01
	ClassSuccessResponse MessageClass = 0x02
	ClassErrorResponse   MessageClass = 0x03
)

func (c MessageClass) String() string {
	switch c {
	case ClassRequest:
		return "request"
	case ClassIndication:
		return "indication"
	case ClassSuccessResponse:
		return "success response"
	case ClassErrorResponse:
		return "error response"
	default:
		return "unknown class"
	}
}

// Method is the 12-bit method field of a STUN message type.
type Method uint16

// Methods used by ICE and TURN.
const (
	MethodBinding          Method = 0x001
	MethodAllocate         Method = 0x003
	MethodRefresh          Method = 0x004
	MethodSend             Method = 0x006
	MethodData             Method = 0x007
	MethodCreatePermission Method = 0x008
	MethodChannelBind      Method = 0x009
)

func (m Method) String() string {
	switch m {
	case MethodBinding:
		return "Binding"
	case MethodAllocate:
		return "Allocate"
	case MethodRefresh:
		return "Refresh"
	case MethodSend:
		return "Send"
	case MethodData:
		return "Data"
	case MethodCreatePermission:
		return "CreatePermission"
	case MethodChannelBind:
		return "ChannelBind"
	default:
		return fmt.Sprintf("0x%x", uint16(m))
	}
}

// MessageType is the decoded (method, class) pair encoded in the first two
// bytes of a STUN message.
type MessageType struct {
	Method Method
	Class  MessageClass
}

const (
	methodABits = 0xf
	methodBBits = 0x70
	methodDBits = 0xf80

	methodBShift = 1
	methodDShift = 2

	c0Bit = 0x1
	c1Bit = 0x2

	classC0Shift = 4
	classC1Shift = 7
)

// Value encodes the MessageType into the wire uint16, per RFC 5389 figure 3.
func (t MessageType) Value() uint16 {
	m := uint16(t.Method)
	a := m & methodABits
	b := m & methodBBits
	d := m & methodDBits
	m = a + (b << methodBShift) + (d << methodDShift)

	c := uint16(t.Class)
	c0 := (c & c0Bit) << classC0Shift
	c1 := (c & c1Bit) << classC1Shift

	return m + c0 + c1
}

// ReadValue decodes a wire uint16 into the MessageType.
func (t *MessageType) ReadValue(v uint16) {
	c0 := (v >> classC0Shift) & c0Bit
	c1 := (v >> classC1Shift) & c1Bit
	t.Class = MessageClass(c0 + c1)

	a := v & methodABits
	b := (v >> methodBShift) & methodBBits
	d := (v >> methodDShift) & methodDBits
	t.Method = Method(a + b + d)
}

func (t MessageType) String() string {
	return fmt.Sprintf("%s %s", t.Method, t.Class)
}

// Shorthand message types used throughout ice/turn.
var (
	BindingRequest            = MessageType{Method: MethodBinding, Class: ClassRequest}
	BindingSuccess            = MessageType{Method: MethodBinding, Class: ClassSuccessResponse}
	BindingError              = MessageType{Method: MethodBinding, Class: ClassErrorResponse}
	BindingIndication         = MessageType{Method: MethodBinding, Class: ClassIndication}
	AllocateRequest           = MessageType{Method: MethodAllocate, Class: ClassRequest}
	AllocateSuccess           = MessageType{Method: MethodAllocate, Class: ClassSuccessResponse}
	AllocateError             = MessageType{Method: MethodAllocate, Class: ClassErrorResponse}
	RefreshRequest            = MessageType{Method: MethodRefresh, Class: ClassRequest}
	RefreshSuccess            = MessageType{Method: MethodRefresh, Class: ClassSuccessResponse}
	RefreshError              = MessageType{Method: MethodRefresh, Class: ClassErrorResponse}
	CreatePermissionRequest   = MessageType{Method: MethodCreatePermission, Class: ClassRequest}
	CreatePermissionSuccess   = MessageType{Method: MethodCreatePermission, Class: ClassSuccessResponse}
	CreatePermissionError     = MessageType{Method: MethodCreatePermission, Class: ClassErrorResponse}
	ChannelBindRequest        = MessageType{Method: MethodChannelBind, Class: ClassRequest}
	ChannelBindSuccess        = MessageType{Method: MethodChannelBind, Class: ClassSuccessResponse}
	ChannelBindError          = MessageType{Method: MethodChannelBind, Class: ClassErrorResponse}
	SendIndication            = MessageType{Method: MethodSend, Class: ClassIndication}
	DataIndication            = MessageType{Method: MethodData, Class: ClassIndication}
)

// RawAttribute is a decoded TLV attribute: type, wire length (unpadded) and
// value bytes (sliced from the message's Raw buffer). BodyOffset is the
// byte offset of this attribute's TLV header relative to the start of the
// message body (i.e. excluding the 20-byte header) — used to compute the
// MESSAGE-INTEGRITY/FINGERPRINT hashing scope.
type RawAttribute struct {
	Type       AttrType
	Length     uint16
	Value      []byte
	BodyOffset int
}

// Message is a single STUN message: header, transaction ID and attributes.
// Raw holds the full wire-encoded bytes once Build or Add has run, and is
// the input Decode parses.
type Message struct {
	Type          MessageType
	Length        uint32
	TransactionID [TransactionIDSize]byte
	Attributes    []RawAttribute
	Raw           []byte
}

// Setter adds an attribute (or otherwise mutates) a Message being built.
type Setter interface {
	AddTo(m *Message) error
}

// Getter extracts an attribute from a decoded Message.
type Getter interface {
	GetFrom(m *Message) error
}

// IsMessage reports whether b could be the start of a STUN message: long
// enough for a header and carrying the magic cookie.
func IsMessage(b []byte) bool {
	if len(b) < messageHeaderSize {
		return false
	}
	return binary.BigEndian.Uint32(b[4:8]) == magicCookie
}

// NewTransactionID returns a new transaction ID. Randomness is supplied by
// the package Randomizer, crypto/rand unless SetRandomizer installed another
// (the callable "random" primitive spec.md §1 treats as an external
// collaborator).
func NewTransactionID() [TransactionIDSize]byte {
	var b [TransactionIDSize]byte
	randRead(b[:])
	return b
}

// Build constructs a new Message by applying setters in order, then encodes
// it to Raw. Attribute ordering follows setter order; MESSAGE-INTEGRITY (if
// present) and FINGERPRINT (if present) are expected to be supplied last by
// the caller so the header-length-rewrite rules in §4.1 hold, but Build does
// not reorder attributes itself.
func Build(setters ...Setter) (*Message, error) {
	m := &Message{TransactionID: NewTransactionID()}
	for _, s := range setters {
		if mt, ok := s.(MessageType); ok {
			m.Type = mt
			continue
		}
		// Re-encode first so a setter that hashes m.Raw (MESSAGE-INTEGRITY,
		// FINGERPRINT) sees the current header even when it is the first
		// attribute or follows a type or transaction-ID change.
		m.encodeHeader()
		if err := s.AddTo(m); err != nil {
			return nil, err
		}
	}
	m.encodeHeader()
	return m, nil
}

// AddTo lets a MessageType itself be passed as a Setter to Build/Decode call
// sites, e.g. stun.Build(stun.BindingRequest, ...).
func (t MessageType) AddTo(m *Message) error {
	m.Type = t
	return nil
}

// AddTo lets an existing Message be passed as a Setter, copying its
// TransactionID onto the message under construction. This is how a response
// is correlated to the request it answers: stun.Build(request, stun.BindingSuccess, ...).
func (src *Message) AddTo(dst *Message) error {
	dst.TransactionID = src.TransactionID
	return nil
}

func (m *Message) attributeBytesLen() int {
	n := 0
	for _, a := range m.Attributes {
		n += attributeHeaderSize + int(a.Length)
		if pad := roundUpTo4(int(a.Length)) - int(a.Length); pad > 0 {
			n += pad
		}
	}
	return n
}

// Add appends a raw attribute to the message and re-serializes Raw. Used by
// Setter implementations.
func (m *Message) Add(t AttrType, v []byte) {
	m.Attributes = append(m.Attributes, RawAttribute{
		Type: t, Length: uint16(len(v)), Value: v, BodyOffset: m.attributeBytesLen(),
	})
	m.encodeHeader()
}

// Get returns the first attribute of the given type, if present.
func (m *Message) Get(t AttrType) (RawAttribute, bool) {
	for _, a := range m.Attributes {
		if a.Type == t {
			return a, true
		}
	}
	return RawAttribute{}, false
}

// Contains reports whether the message carries an attribute of type t.
func (m *Message) Contains(t AttrType) bool {
	_, ok := m.Get(t)
	return ok
}

func roundUpTo4(n int) int {
	if r := n % 4; r != 0 {
		return n + (4 - r)
	}
	return n
}

// encodeHeader serializes the header and all attributes into Raw, with the
// body length field computed over what's been Add-ed so far. Called after
// every Add so the buffer is always consistent, and once more at the end of
// Build.
func (m *Message) encodeHeader() {
	body := m.attributeBytesLen()
	buf := make([]byte, messageHeaderSize+body)

	binary.BigEndian.PutUint16(buf[0:2], m.Type.Value())
	binary.BigEndian.PutUint16(buf[2:4], uint16(body))
	binary.BigEndian.PutUint32(buf[4:8], magicCookie)
	copy(buf[8:messageHeaderSize], m.TransactionID[:])

	off := messageHeaderSize
	for _, a := range m.Attributes {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(a.Type))
		binary.BigEndian.PutUint16(buf[off+2:off+4], a.Length)
		copy(buf[off+attributeHeaderSize:], a.Value)
		off += attributeHeaderSize + roundUpTo4(int(a.Length))
	}

	m.Length = uint32(body)
	m.Raw = buf
}

// Decode parses m.Raw into Type, TransactionID and Attributes. It never
// panics: any malformed input yields an error of type *DecodeError.
func (m *Message) Decode() error {
	buf := m.Raw
	if len(buf) < messageHeaderSize {
		return &DecodeError{Kind: ErrMalformed, Reason: "message shorter than header"}
	}

	m.Type.ReadValue(binary.BigEndian.Uint16(buf[0:2]))
	bodyLen := binary.BigEndian.Uint16(buf[2:4])
	m.Length = uint32(bodyLen)

	if binary.BigEndian.Uint32(buf[4:8]) != magicCookie {
		return &DecodeError{Kind: ErrMalformed, Reason: "bad magic cookie"}
	}
	if int(bodyLen)%4 != 0 {
		return &DecodeError{Kind: ErrMalformed, Reason: "body length not a multiple of 4"}
	}
	copy(m.TransactionID[:], buf[8:messageHeaderSize])

	if len(buf) < messageHeaderSize+int(bodyLen) {
		return &DecodeError{Kind: ErrMalformed, Reason: "body shorter than declared length"}
	}

	body := buf[messageHeaderSize : messageHeaderSize+int(bodyLen)]
	m.Attributes = m.Attributes[:0]

	offset := 0
	var unknown []AttrType
	for offset < len(body) {
		if len(body)-offset < attributeHeaderSize {
			return &DecodeError{Kind: ErrMalformed, Reason: "attribute header truncated"}
		}
		t := AttrType(binary.BigEndian.Uint16(body[offset : offset+2]))
		l := binary.BigEndian.Uint16(body[offset+2 : offset+4])
		valStart := offset + attributeHeaderSize
		valEnd := valStart + int(l)
		if valEnd > len(body) {
			return &DecodeError{Kind: ErrMalformed, Reason: "attribute value overruns body"}
		}

		m.Attributes = append(m.Attributes, RawAttribute{Type: t, Length: l, Value: body[valStart:valEnd], BodyOffset: offset})

		if !t.isKnown() && t < 0x8000 {
			unknown = append(unknown, t)
		}

		offset = valStart + roundUpTo4(int(l))
	}

	if len(unknown) > 0 {
		return &DecodeError{Kind: ErrUnknownRequired, Unknown: unknown}
	}

	return nil
}

// String implements fmt.Stringer for debugging.
func (m Message) String() string {
	return fmt.Sprintf("%s l=%d id=%s attrs=%d", m.Type, m.Length,
		base64.StdEncoding.EncodeToString(m.TransactionID[:]), len(m.Attributes))
}
