package middleware

import (
	"net"
	"net/http"
	"strings"
)

// TrustedProxyList holds the networks whose forwarding headers are believed.
type TrustedProxyList struct {
	trustedIPs []*net.IPNet
}

func NewTrustedProxyList(cidrs []string) (*TrustedProxyList, error) {
	trustedIPs := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		if cidr == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		trustedIPs = append(trustedIPs, ipNet)
	}
	return &TrustedProxyList{trustedIPs: trustedIPs}, nil
}

func (t *TrustedProxyList) IsTrustedProxy(remoteAddr string) bool {
	if t == nil || len(t.trustedIPs) == 0 {
		return false
	}

	ip := net.ParseIP(hostOnly(remoteAddr))
	if ip == nil {
		return false
	}

	for _, trustedNet := range t.trustedIPs {
		if trustedNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the caller's address. X-Forwarded-For and X-Real-IP are
// only honoured when the direct peer is a trusted proxy.
func ClientIP(r *http.Request, checker TrustedProxyChecker) string {
	host := hostOnly(r.RemoteAddr)
	if checker == nil || !checker.IsTrustedProxy(host) {
		return host
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	return host
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
