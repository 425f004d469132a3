package ice

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SchemeType indicates the type of server used in the ice.URL structure.
type SchemeType int

// SchemeType enum, per RFC 7064 (STUN) and RFC 7065 (TURN).
const (
	SchemeTypeSTUN SchemeType = iota + 1
	SchemeTypeSTUNS
	SchemeTypeTURN
	SchemeTypeTURNS
)

func (s SchemeType) String() string {
	switch s {
	case SchemeTypeSTUN:
		return "stun"
	case SchemeTypeSTUNS:
		return "stuns"
	case SchemeTypeTURN:
		return "turn"
	case SchemeTypeTURNS:
		return "turns"
	default:
		return ErrUnknownType.Error()
	}
}

func parseSchemeType(raw string) (SchemeType, error) {
	switch raw {
	case "stun":
		return SchemeTypeSTUN, nil
	case "stuns":
		return SchemeTypeSTUNS, nil
	case "turn":
		return SchemeTypeTURN, nil
	case "turns":
		return SchemeTypeTURNS, nil
	default:
		return 0, ErrSchemeType
	}
}

// ProtoType indicates the transport protocol type that is used in the
// ice.URL structure.
type ProtoType int

// ProtoType enum.
const (
	ProtoTypeUDP ProtoType = iota + 1
	ProtoTypeTCP
)

func (p ProtoType) String() string {
	switch p {
	case ProtoTypeUDP:
		return "udp"
	case ProtoTypeTCP:
		return "tcp"
	default:
		return ErrUnknownType.Error()
	}
}

func parseProtoType(raw string) (ProtoType, error) {
	switch raw {
	case "", "udp":
		return ProtoTypeUDP, nil
	case "tcp":
		return ProtoTypeTCP, nil
	default:
		return 0, ErrProtoType
	}
}

// URL represents a STUN (RFC 7064) or TURN (RFC 7065) URL, plus TURN's
// long-term credentials when the caller must authenticate to a relay.
type URL struct {
	Scheme   SchemeType
	Host     string
	Port     int
	Username string
	Password string
	Proto    ProtoType
}

// ParseURL parses a STUN/TURN URL string into its components. Credentials,
// if any, must be supplied separately by the caller (they are not part of
// the URL syntax) — set URL.Username/Password after parsing.
func ParseURL(raw string) (*URL, error) {
	rawParts := strings.SplitN(raw, ":", 2)
	if len(rawParts) != 2 {
		return nil, ErrSTUNQuery
	}

	scheme, err := parseSchemeType(rawParts[0])
	if err != nil {
		return nil, err
	}

	var rawQuery string
	rest := rawParts[1]
	if pos := strings.IndexByte(rest, '?'); pos != -1 {
		rawQuery = rest[pos+1:]
		rest = rest[:pos]
	}

	host, portRaw, err := splitHostPort(rest)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return nil, ErrHost
	}

	proto := ProtoTypeUDP
	if rawQuery != "" {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, ErrInvalidQuery
		}
		if transports, ok := q["transport"]; ok && len(transports) > 0 {
			if proto, err = parseProtoType(transports[0]); err != nil {
				return nil, err
			}
		}
	}

	port := 3478
	if scheme == SchemeTypeSTUNS || scheme == SchemeTypeTURNS {
		port = 5349
	}
	if portRaw != "" {
		if port, err = strconv.Atoi(portRaw); err != nil {
			return nil, ErrPort
		}
	}

	return &URL{Scheme: scheme, Host: host, Port: port, Proto: proto}, nil
}

func splitHostPort(hostport string) (host, port string, err error) {
	if idx := strings.LastIndexByte(hostport, ':'); idx != -1 {
		return hostport[:idx], hostport[idx+1:], nil
	}
	return hostport, "", nil
}

func (u URL) String() string {
	rawURL := fmt.Sprintf("%s:%s:%d", u.Scheme, u.Host, u.Port)
	if u.Proto != ProtoTypeUDP {
		rawURL += "?transport=" + u.Proto.String()
	}
	return rawURL
}
