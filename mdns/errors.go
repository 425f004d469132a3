package mdns

import "errors"

var (
	errNilConfig             = errors.New("mdns: Config must not be nil")
	errJoiningMulticastGroup = errors.New("mdns: failed to join multicast group on all interfaces")
	errConnectionClosed      = errors.New("mdns: connection closed")
	errContextElapsed        = errors.New("mdns: query context done before an answer arrived")
)
