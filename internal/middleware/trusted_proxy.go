package middleware

import (
	"fmt"
	"net"
	"strings"

	"letknow-gateway/internal/models"
	"letknow-gateway/pkg/errors"
)

// TrustedProxyList holds the load balancers whose X-Forwarded-For is believed when
// matching a storefront against its allowlist.
type TrustedProxyList struct {
	networks []*net.IPNet
}

// NewTrustedProxyList parses SERVER_TRUSTED_PROXIES. Entries are CIDR ranges or bare
// addresses, the same forms a storefront allowlist takes.
func NewTrustedProxyList(entries []string) (*TrustedProxyList, error) {
	networks := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		network, err := models.ParseIPRange(entry)
		if err != nil {
			return nil, errors.WrapDomainError(err, errors.CodeInvalidConfiguration, "invalid trusted proxy",
				fmt.Sprintf("SERVER_TRUSTED_PROXIES entry %q is not an address or CIDR range", entry))
		}
		networks = append(networks, network)
	}
	return &TrustedProxyList{networks: networks}, nil
}

// IsTrustedProxy reports whether the peer at remoteAddr, with or without a port, may
// forward a storefront's client address.
func (t *TrustedProxyList) IsTrustedProxy(remoteAddr string) bool {
	if t == nil || len(t.networks) == 0 {
		return false
	}

	ip := net.ParseIP(peerHost(remoteAddr))
	if ip == nil {
		return false
	}
	for _, network := range t.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func peerHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.Trim(remoteAddr, "[]")
}
