package transport

import (
	"net"
)

// InterfaceAddr 本机一个 IPv4 地址
type InterfaceAddr struct {
	Interface net.Interface
	IP        net.IP
	Net       *net.IPNet
	Broadcast net.IP
	Loopback  bool
}

// interfaceAddrs 可在测试中替换
var interfaceAddrs = func() ([]InterfaceAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []InterfaceAddr
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipn.IP.To4()
			if ip4 == nil {
				continue
			}
			ia := InterfaceAddr{
				Interface: ifi,
				IP:        ip4,
				Net:       &net.IPNet{IP: ip4.Mask(ipn.Mask), Mask: ipn.Mask},
				Loopback:  ifi.Flags&net.FlagLoopback != 0,
			}
			if ifi.Flags&net.FlagBroadcast != 0 && !ia.Loopback {
				ia.Broadcast = broadcastOf(ip4, ipn.Mask)
			}
			out = append(out, ia)
		}
	}
	return out, nil
}

// LocalIPv4 本机所有已启用接口的 IPv4 地址
func LocalIPv4() []InterfaceAddr {
	addrs, err := interfaceAddrs()
	if err != nil {
		log.Warn("枚举网络接口失败", "err", err)
		return nil
	}
	return addrs
}

// IsLocalIP 该地址是否属于本机
func IsLocalIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	for _, a := range LocalIPv4() {
		if a.IP.Equal(parsed) {
			return true
		}
	}
	return false
}

// BroadcastAddrs 所有非回环接口的广播地址（去重）
func BroadcastAddrs() []net.IP {
	seen := make(map[string]struct{})
	var out []net.IP
	for _, a := range LocalIPv4() {
		if a.Broadcast == nil {
			continue
		}
		if _, ok := seen[a.Broadcast.String()]; ok {
			continue
		}
		seen[a.Broadcast.String()] = struct{}{}
		out = append(out, a.Broadcast)
	}
	return out
}

func broadcastOf(ip net.IP, mask net.IPMask) net.IP {
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	out := make(net.IP, net.IPv4len)
	for i := range out {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
