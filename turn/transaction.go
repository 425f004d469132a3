package turn

import (
	"encoding/base64"
	"net"
	"sync"
	"time"

	"github.com/udpmesh/ice/stun"
)

// transactionResult is what a transaction yields: either a matched response
// message, or a terminal error (timeout, or the transaction was dropped
// out from under a waiter by Close).
type transactionResult struct {
	msg  *stun.Message
	from net.Addr
	err  error
}

// transaction tracks one outstanding request awaiting a STUN response,
// retransmitting on an exponential backoff per RFC 5389 Appendix B
// (request timeout RTO, doubling on each retry, capped at maxRetransmits).
type transaction struct {
	key     string
	raw     []byte
	to      net.Addr
	rto     time.Duration
	resultC chan transactionResult
	timer   *time.Timer

	mu       sync.Mutex
	retries  int
	done     bool
}

const maxRetransmits = 7

func newTransaction(key string, raw []byte, to net.Addr, rto time.Duration) *transaction {
	return &transaction{
		key:     key,
		raw:     raw,
		to:      to,
		rto:     rto,
		resultC: make(chan transactionResult, 1),
	}
}

func (t *transaction) startRetransmitTimer(onTimeout func(key string, nthRtx int)) {
	t.timer = time.AfterFunc(t.rto*time.Duration(1<<uint(t.retries)), func() {
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.retries++
		n := t.retries
		t.mu.Unlock()
		onTimeout(t.key, n)
	})
}

func (t *transaction) stopRetransmitTimer() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *transaction) complete(res transactionResult) bool {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return false
	}
	t.done = true
	t.mu.Unlock()

	select {
	case t.resultC <- res:
		return true
	default:
		return false
	}
}

func (t *transaction) wait() transactionResult {
	return <-t.resultC
}

// transactionMap is a concurrency-safe registry of outstanding
// transactions, keyed by base64(transaction ID).
type transactionMap struct {
	mu sync.Mutex
	m  map[string]*transaction
}

func newTransactionMap() *transactionMap {
	return &transactionMap{m: map[string]*transaction{}}
}

func transactionKey(id [stun.TransactionIDSize]byte) string {
	return base64.StdEncoding.EncodeToString(id[:])
}

func (tm *transactionMap) insert(tr *transaction) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.m[tr.key] = tr
}

func (tm *transactionMap) find(key string) (*transaction, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tr, ok := tm.m[key]
	return tr, ok
}

func (tm *transactionMap) delete(key string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.m, key)
}

func (tm *transactionMap) closeAndDeleteAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for key, tr := range tm.m {
		tr.stopRetransmitTimer()
		tr.complete(transactionResult{err: errTransactionClosed})
		delete(tm.m, key)
	}
}
