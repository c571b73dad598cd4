package netaddr

import "net"

// LocalIPv4s returns the IPv4 addresses of interfaces that are up, skipping
// loopback and link-local addresses.
func LocalIPv4s() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ifAddrs...)
	}
	return selectIPv4(addrs)
}

func selectIPv4(addrs []net.Addr) []net.IP {
	var ips []net.IP
	for _, addr := range addrs {
		var ip net.IP
		switch addr := addr.(type) {
		case *net.IPNet:
			ip = addr.IP
		case *net.IPAddr:
			ip = addr.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			ips = append(ips, ip4)
		}
	}
	return ips
}

// PreferredIPv4 returns the first LAN address, or 127.0.0.1 when the host
// has none.
func PreferredIPv4() net.IP {
	if ips := LocalIPv4s(); len(ips) > 0 {
		return ips[0]
	}
	return net.IPv4(127, 0, 0, 1).To4()
}

// DefaultListenAddr is the preferred local address with an OS-assigned port.
func DefaultListenAddr() string {
	return net.JoinHostPort(PreferredIPv4().String(), "0")
}

// Advertise returns the host:port a receiver should dial for a listener
// bound at bound. Unspecified hosts are replaced by the preferred address.
func Advertise(bound net.Addr) string {
	host, port, err := net.SplitHostPort(bound.String())
	if err != nil {
		return bound.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = PreferredIPv4().String()
	}
	return net.JoinHostPort(host, port)
}
