package models

import (
	"fmt"
	"net"
	"strings"
)

const (
	StorefrontStatusActive    = "active"
	StorefrontStatusSuspended = "suspended"
)

// Storefront is an authenticated caller of the checkout API.
type Storefront struct {
	ID         string   `json:"storefront_id"`
	APIKeyHash string   `json:"api_key_hash"`
	AllowedIPs []string `json:"allowed_ips,omitempty"`
	Status     string   `json:"status"`
}

// IsActive reports whether the storefront may submit checkouts. An unset status counts as active.
func (s *Storefront) IsActive() bool {
	return s.Status == "" || s.Status == StorefrontStatusActive
}

// ParseIPRange parses an allowlist entry: a CIDR range or a single address.
func ParseIPRange(entry string) (*net.IPNet, error) {
	entry = strings.TrimSpace(entry)
	if ip := net.ParseIP(entry); ip != nil {
		bits := 128
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 32
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
	}
	_, ipNet, err := net.ParseCIDR(entry)
	if err != nil {
		return nil, fmt.Errorf("invalid ip range %q", entry)
	}
	return ipNet, nil
}

// AllowsIP reports whether ip falls inside the storefront's allowlist.
// An empty allowlist admits every address.
func (s *Storefront) AllowsIP(ip string) bool {
	if len(s.AllowedIPs) == 0 {
		return true
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, entry := range s.AllowedIPs {
		ipNet, err := ParseIPRange(entry)
		if err != nil {
			continue
		}
		if ipNet.Contains(parsedIP) {
			return true
		}
	}

	return false
}
