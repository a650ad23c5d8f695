package utils

import (
	"net"
	"strings"
)

// vpnNameFragments mark interfaces where direct ICE paths rarely pair:
// tunnels, WireGuard, PPP, Cloudflare WARP.
var vpnNameFragments = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay reports whether this host is likely behind a VPN or
// carrier-grade NAT, in which case media should go straight to TURN
// instead of burning time on host/srflx candidates.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	// 100.64.0.0/10 is the CGNAT block, also used by WARP and Tailscale.
	_, cgnatBlock, _ := net.ParseCIDR("100.64.0.0/10")

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, fragment := range vpnNameFragments {
			if strings.Contains(name, fragment) {
				return true
			}
		}

		addrs, err := iface.Addrs()
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
			}
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
