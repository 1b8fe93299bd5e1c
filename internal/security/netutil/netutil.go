package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrPrivateAddress is returned when a URL resolves into a private,
// loopback or otherwise reserved range.
var ErrPrivateAddress = errors.New("URL resolves to private/reserved address")

var privateCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// IsPrivateIP returns true if the IP is in a private, loopback, link-local or reserved range
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, cidr := range privateCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil && network.Contains(ip) {
			return true
		}
	}
	return false
}

// CheckURL validates that a URL is HTTP(S) and does not point into a
// private or reserved range. Loopback is allowed for local testing.
func CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme %q: must use HTTP or HTTPS", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) && !ip.IsLoopback() {
			return ErrPrivateAddress
		}
		return nil
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts fail at dial time with a clearer error.
		return nil
	}
	for _, a := range addrs {
		if IsPrivateIP(a) && !a.IsLoopback() {
			return ErrPrivateAddress
		}
	}
	return nil
}
