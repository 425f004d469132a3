package ice

import "net"

// localInterfaces enumerates addresses usable as host candidates: every
// configured, non-loopback address on an up interface whose family is
// requested in networkTypes, optionally narrowed by an InterfaceFilter.
func localInterfaces(n *Net, filter func(string) bool, networkTypes []NetworkType) ([]net.IP, error) {
	ifs, err := n.Interfaces()
	if err != nil {
		return nil, err
	}

	wantV4, wantV6 := wantedFamilies(networkTypes)

	var ips []net.IP
	seen := make(map[string]struct{})
	for _, ifc := range ifs {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		if filter != nil && !filter(ifc.Name) {
			continue
		}

		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			default:
				continue
			}

			if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
				continue
			}

			isV4 := ip.To4() != nil
			if isV4 && !wantV4 {
				continue
			}
			if !isV4 && !wantV6 {
				continue
			}

			key := ip.String()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			ips = append(ips, ip)
		}
	}

	return ips, nil
}

func wantedFamilies(networkTypes []NetworkType) (v4, v6 bool) {
	if len(networkTypes) == 0 {
		return true, true
	}
	for _, t := range networkTypes {
		switch t {
		case NetworkTypeUDP4:
			v4 = true
		case NetworkTypeUDP6:
			v6 = true
		}
	}
	return v4, v6
}
