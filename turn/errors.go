package turn

import "errors"

// Client-side errors. TURN server functionality is out of scope, so this
// package carries only the error conditions a client allocation can hit.
var (
	errNilConn                       = errors.New("turn: ClientConfig.Conn cannot be nil")
	errTURNServerAddrNotSet          = errors.New("turn: ClientConfig.TURNServerAddr is empty")
	errAlreadyListening              = errors.New("turn: Listen has already been called")
	errOneAllocateOnly                = errors.New("turn: Allocate has already been called")
	errAlreadyAllocated               = errors.New("turn: already allocated a relay address")
	errNoAllocation                   = errors.New("turn: no allocation to refresh or close")
	errUDPAddrCast                     = errors.New("turn: addr is not a *net.UDPAddr")
	errChannelBindNotFound            = errors.New("turn: no binding for channel number")
	errNonSTUNMessage                  = errors.New("turn: non-STUN message received from TURN server")
	errFailedToDecodeSTUN              = errors.New("turn: failed to decode STUN message")
	errUnexpectedSTUNRequestMessage    = errors.New("turn: unexpected STUN request from server")
	errTransactionClosed               = errors.New("turn: transaction closed before a response arrived")
	errTransactionTimedOut             = errors.New("turn: transaction timed out after max retransmissions")
	errTryAgain                        = errors.New("turn: stale nonce, retry with refreshed credentials")
	errAllocateMismatchedResponse      = errors.New("turn: unexpected Allocate response type")
	errRefreshMismatchedResponse       = errors.New("turn: unexpected Refresh response type")
	errCreatePermissionMismatchedResponse = errors.New("turn: unexpected CreatePermission response type")
	errChannelBindMismatchedResponse   = errors.New("turn: unexpected ChannelBind response type")
	errAlreadyClosed                   = errors.New("turn: connection already closed")
	errAlreadyLocked                   = errors.New("turn: already in progress")
	errReadTimeout                     = errors.New("i/o timeout")
)
