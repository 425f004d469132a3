package turn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionMapInsertFindDelete(t *testing.T) {
	tm := newTransactionMap()
	tr := newTransaction("key1", []byte("raw"), &net.UDPAddr{}, time.Millisecond)

	tm.insert(tr)
	found, ok := tm.find("key1")
	require.True(t, ok)
	assert.Same(t, tr, found)

	tm.delete("key1")
	_, ok = tm.find("key1")
	assert.False(t, ok)
}

func TestTransactionCompleteOnlyOnce(t *testing.T) {
	tr := newTransaction("key1", nil, &net.UDPAddr{}, time.Millisecond)

	assert.True(t, tr.complete(transactionResult{}))
	assert.False(t, tr.complete(transactionResult{}))
}

func TestTransactionWaitReturnsCompletedResult(t *testing.T) {
	tr := newTransaction("key1", nil, &net.UDPAddr{}, time.Millisecond)
	want := transactionResult{err: errTransactionTimedOut}

	tr.complete(want)
	got := tr.wait()
	assert.Equal(t, want.err, got.err)
}

func TestTransactionMapCloseAndDeleteAll(t *testing.T) {
	tm := newTransactionMap()
	tr := newTransaction("key1", nil, &net.UDPAddr{}, time.Minute)
	tm.insert(tr)

	tm.closeAndDeleteAll()

	_, ok := tm.find("key1")
	assert.False(t, ok)

	res := tr.wait()
	assert.ErrorIs(t, res.err, errTransactionClosed)
}
