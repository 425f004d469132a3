package packetio

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWriteRead(t *testing.T) {
	b := NewBuffer()

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	out := make([]byte, 16)
	n, err = b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out[:n]))
}

func TestBufferPreservesPacketBoundaries(t *testing.T) {
	b := NewBuffer()
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = b.Write([]byte("de"))
	require.NoError(t, err)

	out := make([]byte, 16)
	n, err := b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out[:n]))

	n, err = b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "de", string(out[:n]))
}

func TestBufferShortReadBuffer(t *testing.T) {
	b := NewBuffer()
	_, err := b.Write([]byte("hello"))
	require.NoError(t, err)

	out := make([]byte, 2)
	_, err = b.Read(out)
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestBufferLimitSize(t *testing.T) {
	b := NewBuffer()
	b.SetLimitSize(4)

	_, err := b.Write([]byte("abcde"))
	assert.ErrorIs(t, err, ErrFull)
}

func TestBufferLimitCount(t *testing.T) {
	b := NewBuffer()
	b.SetLimitCount(1)

	_, err := b.Write([]byte("a"))
	require.NoError(t, err)
	_, err = b.Write([]byte("b"))
	assert.ErrorIs(t, err, ErrFull)
}

func TestBufferCloseDrainsThenEOF(t *testing.T) {
	b := NewBuffer()
	_, err := b.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	out := make([]byte, 8)
	n, err := b.Read(out)
	require.NoError(t, err)
	assert.Equal(t, "a", string(out[:n]))

	_, err = b.Read(out)
	assert.ErrorIs(t, err, io.EOF)

	_, err = b.Write([]byte("b"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestBufferReadDeadline(t *testing.T) {
	b := NewBuffer()
	require.NoError(t, b.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	out := make([]byte, 8)
	_, err := b.Read(out)
	require.Error(t, err)

	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
}
