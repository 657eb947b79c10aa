package validator

import (
	"net/netip"
	"strings"
)

// IsValidIP reports whether ip parses as IPv4 or IPv6
func IsValidIP(ip string) bool {
	_, err := netip.ParseAddr(ip)
	return err == nil
}

// NormalizeIP strips an IPv6 zone (fe80::1%eth0 -> fe80::1) and unmaps
// IPv4-in-IPv6 addresses
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if idx := strings.IndexByte(ip, '%'); idx != -1 {
		ip = ip[:idx]
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ip
	}
	return addr.Unmap().String()
}

// GetIPOrDefault returns the normalized ip, or defaultIP when it is not valid
func GetIPOrDefault(ip, defaultIP string) string {
	normalized := NormalizeIP(ip)
	if IsValidIP(normalized) {
		return normalized
	}
	return defaultIP
}
