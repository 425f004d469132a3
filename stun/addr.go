package stun

import (
	"encoding/binary"
	"net"
)

const (
	familyIPv4 byte = 0x01
	familyIPv6 byte = 0x02
)

func familyOf(ip net.IP) (byte, net.IP) {
	if v4 := ip.To4(); v4 != nil {
		return familyIPv4, v4
	}
	return familyIPv6, ip.To16()
}

func encodeAddrValue(ip net.IP, port int) []byte {
	family, raw := familyOf(ip)
	v := make([]byte, 4+len(raw))
	v[1] = family
	binary.BigEndian.PutUint16(v[2:4], uint16(port))
	copy(v[4:], raw)
	return v
}

func decodeAddrValue(v []byte) (net.IP, int, error) {
	if len(v) < 4 {
		return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "address attribute too short"}
	}
	family := v[1]
	port := int(binary.BigEndian.Uint16(v[2:4]))
	raw := v[4:]
	switch family {
	case familyIPv4:
		if len(raw) < 4 {
			return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "IPv4 address truncated"}
		}
		return net.IP(append([]byte{}, raw[:4]...)), port, nil
	case familyIPv6:
		if len(raw) < 16 {
			return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "IPv6 address truncated"}
		}
		return net.IP(append([]byte{}, raw[:16]...)), port, nil
	default:
		return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "unknown address family"}
	}
}

// MappedAddress is the (unobfuscated) MAPPED-ADDRESS attribute.
type MappedAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a MappedAddress) AddTo(m *Message) error {
	m.Add(AttrMappedAddress, encodeAddrValue(a.IP, a.Port))
	return nil
}

// GetFrom implements Getter.
func (a *MappedAddress) GetFrom(m *Message) error {
	attr, ok := m.Get(AttrMappedAddress)
	if !ok {
		return errAttrNotFound(AttrMappedAddress)
	}
	ip, port, err := decodeAddrValue(attr.Value)
	if err != nil {
		return err
	}
	a.IP, a.Port = ip, port
	return nil
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// xorMask returns the XOR mask for an address attribute of the given
// IP length: 4 bytes of magic cookie, extended with the transaction ID for
// IPv6, per spec.md §4.1.
func xorMask(ipLen int, txID [TransactionIDSize]byte) []byte {
	mask := make([]byte, 4+TransactionIDSize)
	binary.BigEndian.PutUint32(mask[0:4], magicCookie)
	copy(mask[4:], txID[:])
	return mask[:ipLen]
}

func encodeXORAddrValue(ip net.IP, port int, txID [TransactionIDSize]byte) []byte {
	family, raw := familyOf(ip)
	mask := xorMask(len(raw), txID)

	v := make([]byte, 4+len(raw))
	v[1] = family
	xPort := uint16(port) ^ uint16(magicCookie>>16)
	binary.BigEndian.PutUint16(v[2:4], xPort)
	xAddr := make([]byte, len(raw))
	xorBytes(xAddr, raw, mask)
	copy(v[4:], xAddr)
	return v
}

func decodeXORAddrValue(v []byte, txID [TransactionIDSize]byte) (net.IP, int, error) {
	if len(v) < 4 {
		return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "XOR address attribute too short"}
	}
	family := v[1]
	xPort := binary.BigEndian.Uint16(v[2:4])
	port := int(xPort ^ uint16(magicCookie>>16))

	raw := v[4:]
	var ipLen int
	switch family {
	case familyIPv4:
		ipLen = 4
	case familyIPv6:
		ipLen = 16
	default:
		return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "unknown address family"}
	}
	if len(raw) < ipLen {
		return nil, 0, &DecodeError{Kind: ErrMalformed, Reason: "XOR address truncated"}
	}
	mask := xorMask(ipLen, txID)
	ip := make([]byte, ipLen)
	xorBytes(ip, raw[:ipLen], mask)
	return net.IP(ip), port, nil
}

// XORMappedAddress is the XOR-MAPPED-ADDRESS attribute (spec.md §4.1).
type XORMappedAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a XORMappedAddress) AddTo(m *Message) error {
	m.Add(AttrXORMappedAddress, encodeXORAddrValue(a.IP, a.Port, m.TransactionID))
	return nil
}

// GetFrom implements Getter.
func (a *XORMappedAddress) GetFrom(m *Message) error {
	attr, ok := m.Get(AttrXORMappedAddress)
	if !ok {
		return errAttrNotFound(AttrXORMappedAddress)
	}
	ip, port, err := decodeXORAddrValue(attr.Value, m.TransactionID)
	if err != nil {
		return err
	}
	a.IP, a.Port = ip, port
	return nil
}

// XORPeerAddress is TURN's XOR-PEER-ADDRESS attribute.
type XORPeerAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a XORPeerAddress) AddTo(m *Message) error {
	m.Add(AttrXORPeerAddress, encodeXORAddrValue(a.IP, a.Port, m.TransactionID))
	return nil
}

// GetFrom implements Getter.
func (a *XORPeerAddress) GetFrom(m *Message) error {
	attr, ok := m.Get(AttrXORPeerAddress)
	if !ok {
		return errAttrNotFound(AttrXORPeerAddress)
	}
	ip, port, err := decodeXORAddrValue(attr.Value, m.TransactionID)
	if err != nil {
		return err
	}
	a.IP, a.Port = ip, port
	return nil
}

// XORRelayedAddress is TURN's XOR-RELAYED-ADDRESS attribute.
type XORRelayedAddress struct {
	IP   net.IP
	Port int
}

// AddTo implements Setter.
func (a XORRelayedAddress) AddTo(m *Message) error {
	m.Add(AttrXORRelayedAddress, encodeXORAddrValue(a.IP, a.Port, m.TransactionID))
	return nil
}

// GetFrom implements Getter.
func (a *XORRelayedAddress) GetFrom(m *Message) error {
	attr, ok := m.Get(AttrXORRelayedAddress)
	if !ok {
		return errAttrNotFound(AttrXORRelayedAddress)
	}
	ip, port, err := decodeXORAddrValue(attr.Value, m.TransactionID)
	if err != nil {
		return err
	}
	a.IP, a.Port = ip, port
	return nil
}
