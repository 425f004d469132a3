package stun

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDecodeRoundTrip(t *testing.T) {
	m, err := Build(
		BindingRequest,
		Username("frag:rfrag"),
		Priority(2130706431),
		UseCandidate,
		ICEControlling(0x1122334455667788),
		NewShortTermIntegrity("pwd"),
		Fingerprint,
	)
	require.NoError(t, err)

	decoded := &Message{Raw: m.Raw}
	require.NoError(t, decoded.Decode())

	assert.Equal(t, BindingRequest, decoded.Type)
	assert.Equal(t, m.TransactionID, decoded.TransactionID)

	var username Username
	require.NoError(t, username.GetFrom(decoded))
	assert.Equal(t, Username("frag:rfrag"), username)

	var prio Priority
	require.NoError(t, prio.GetFrom(decoded))
	assert.Equal(t, Priority(2130706431), prio)

	assert.True(t, decoded.Contains(AttrUseCandidate))

	assert.NoError(t, NewShortTermIntegrity("pwd").Check(decoded))
	assert.NoError(t, Check(decoded))
}

func TestMessageIntegrityRejectsTamperedKey(t *testing.T) {
	m, err := Build(BindingRequest, Username("u"), NewShortTermIntegrity("pwd"))
	require.NoError(t, err)

	decoded := &Message{Raw: m.Raw}
	require.NoError(t, decoded.Decode())

	err = NewShortTermIntegrity("wrong").Check(decoded)
	assert.Error(t, err)
	assert.True(t, errIsIntegrityMismatch(err))
}

func errIsIntegrityMismatch(err error) bool {
	ie, ok := err.(*IntegrityError)
	return ok && ie.Kind == ErrIntegrityMismatch
}

func TestFingerprintDetectsCorruption(t *testing.T) {
	m, err := Build(BindingRequest, Fingerprint)
	require.NoError(t, err)

	m.Raw[messageHeaderSize] ^= 0xFF // flip a byte inside the first attribute's TLV header

	decoded := &Message{Raw: m.Raw}
	require.NoError(t, decoded.Decode())
	assert.Error(t, Check(decoded))
}

func TestDecodeNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		{0, 1, 2},
		append([]byte{0x00, 0x01, 0x00, 0x04, 0x21, 0x12, 0xA4, 0x42}, make([]byte, 12)...),
		func() []byte {
			b := make([]byte, messageHeaderSize+4)
			b[2], b[3] = 0, 4
			copy(b[4:8], []byte{0x21, 0x12, 0xA4, 0x42})
			b[messageHeaderSize+2] = 0xFF
			b[messageHeaderSize+3] = 0xFF // declares a value far larger than available
			return b
		}(),
	}
	for _, in := range inputs {
		m := &Message{Raw: in}
		assert.NotPanics(t, func() { _ = m.Decode() })
	}
}

func TestDecodeRejectsUnknownRequiredAttribute(t *testing.T) {
	m, err := Build(BindingRequest)
	require.NoError(t, err)
	m.Add(AttrType(0x7FFE), []byte{1, 2, 3, 4})

	decoded := &Message{Raw: m.Raw}
	err = decoded.Decode()
	require.Error(t, err)
	assert.True(t, errIsUnknownRequired(err))
}

func errIsUnknownRequired(err error) bool {
	de, ok := err.(*DecodeError)
	return ok && de.Kind == ErrUnknownRequired
}

func TestXORMappedAddressRoundTrip(t *testing.T) {
	cases := []struct {
		ip   net.IP
		port int
	}{
		{net.ParseIP("192.0.2.1"), 32853},
		{net.ParseIP("2001:db8::1"), 6000},
	}
	for _, c := range cases {
		m, err := Build(BindingSuccess, XORMappedAddress{IP: c.ip, Port: c.port})
		require.NoError(t, err)

		decoded := &Message{Raw: m.Raw, TransactionID: m.TransactionID}
		require.NoError(t, decoded.Decode())

		var got XORMappedAddress
		require.NoError(t, got.GetFrom(decoded))
		assert.Equal(t, c.port, got.Port)
		assert.True(t, c.ip.Equal(got.IP), "want %s got %s", c.ip, got.IP)
	}
}

// RFC 5769 §2.1 sample request.
var rfc5769SampleRequest = []byte{
	0x00, 0x01, 0x00, 0x58,
	0x21, 0x12, 0xa4, 0x42,
	0xb7, 0xe7, 0xa7, 0x01,
	0xbc, 0x34, 0xd6, 0x86,
	0xfa, 0x87, 0xdf, 0xae,
	0x80, 0x22, 0x00, 0x10,
	0x53, 0x54, 0x55, 0x4e, 0x20, 0x74, 0x65, 0x73,
	0x74, 0x20, 0x63, 0x6c, 0x69, 0x65, 0x6e, 0x74,
	0x00, 0x24, 0x00, 0x04,
	0x6e, 0x00, 0x01, 0xff,
	0x80, 0x29, 0x00, 0x08,
	0x93, 0x2f, 0xf9, 0xb1, 0x51, 0x26, 0x3b, 0x36,
	0x00, 0x06, 0x00, 0x09,
	0x65, 0x76, 0x74, 0x6a, 0x3a, 0x68, 0x36, 0x76,
	0x59, 0x20, 0x20, 0x20,
	0x00, 0x08, 0x00, 0x14,
	0x9a, 0xea, 0xa7, 0x0c, 0xbf, 0xd8, 0xcb, 0x56,
	0x78, 0x1e, 0xf2, 0xb5, 0xb2, 0xd3, 0xf2, 0x49,
	0xc1, 0xb5, 0x71, 0xa2,
	0x80, 0x28, 0x00, 0x04,
	0xe5, 0x7a, 0x3b, 0xcf,
}

func TestDecodeRFC5769SampleRequest(t *testing.T) {
	m := &Message{Raw: rfc5769SampleRequest}
	require.NoError(t, m.Decode())

	assert.Equal(t, BindingRequest, m.Type)

	var username Username
	require.NoError(t, username.GetFrom(m))
	assert.Equal(t, Username("evtj:h6vY"), username)

	mi := NewShortTermIntegrity("VOkJxbRl1RmTxUk/WvJxBt")
	assert.NoError(t, mi.Check(m))
}

func TestPriorityLiteralMatchesFormula(t *testing.T) {
	// type preference 126 (host), local preference 65535, component 1:
	// (1<<24)*126 + (1<<8)*65535 + (256-1) = 2130706431
	const typePref = 126
	const localPref = 65535
	const component = 1
	got := uint32(1<<24)*typePref + uint32(1<<8)*localPref + (256 - uint32(component))
	assert.Equal(t, uint32(2130706431), got)
}
