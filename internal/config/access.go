package config

import (
	"net"
	"strings"
)

// ParseNetworks converts addresses and CIDR blocks into networks.
// A bare IP becomes a single-host network; unparsable entries are skipped.
func ParseNetworks(values []string) []*net.IPNet {
	var result []*net.IPNet
	for _, part := range values {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil {
				if v4 := ip.To4(); v4 != nil {
					ip = v4
				}
				mask := net.CIDRMask(len(ip)*8, len(ip)*8)
				result = append(result, &net.IPNet{IP: ip, Mask: mask})
			}
			continue
		}
		if _, network, err := net.ParseCIDR(part); err == nil {
			result = append(result, network)
		}
	}
	return result
}
