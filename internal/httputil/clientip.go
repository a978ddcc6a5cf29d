package httputil

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address that per-client limits and logs key on.
//
// With trustProxy set, the leftmost X-Forwarded-For entry wins, then
// X-Real-IP; a header that does not hold an IP address is ignored so it
// cannot mint fresh limiter keys. Addresses are canonicalised: ports and IPv6
// zones are dropped and IPv4-mapped IPv6 is unmapped, so one client always
// lands in one bucket.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if addr, ok := parseAddr(first); ok {
				return addr.String()
			}
		}
		if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}
	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr.String()
	}
	return r.RemoteAddr
}

// parseAddr accepts "ip", "ip:port", "[ipv6]" and "[ipv6]:port".
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(s, "["), "]"))
	if err != nil {
		ap, perr := netip.ParseAddrPort(s)
		if perr != nil {
			return netip.Addr{}, false
		}
		addr = ap.Addr()
	}
	return addr.Unmap().WithZone(""), true
}
