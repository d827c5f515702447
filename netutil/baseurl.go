package netutil

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/zhuguadundan/videowhisper/errors"
)

// Policy controls which outbound base URLs the service will talk to. The
// zero value is the strictest setting: https only, public addresses only.
type Policy struct {
	AllowInsecureHTTP     bool
	AllowPrivateAddresses bool
	AllowedHosts          []string
	EnforceAllowedHosts   bool
}

// lookupIPAddr is swapped in tests to avoid real DNS.
var lookupIPAddr = func(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// CheckBaseURL validates an outbound URL against the policy. The same check
// guards configured vendor base URLs, submitted video URLs, and LLM
// endpoints; every rejection carries the url_rejected kind.
func CheckBaseURL(ctx context.Context, raw string, p Policy) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return errors.E(errors.KindURLRejected, "invalid url", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowInsecureHTTP {
			return errors.E(errors.KindURLRejected, "plain http urls are not allowed", nil)
		}
	default:
		return errors.Ef(errors.KindURLRejected, nil, "unsupported url scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return errors.E(errors.KindURLRejected, "url has no host", nil)
	}
	normalized, err := NormalizeHost(host)
	if err != nil {
		return errors.E(errors.KindURLRejected, "invalid host", err)
	}

	if p.EnforceAllowedHosts && len(p.AllowedHosts) > 0 && !p.hostAllowed(normalized) {
		return errors.Ef(errors.KindURLRejected, nil, "host %s is not in the allowed host list", normalized)
	}

	if p.AllowPrivateAddresses {
		return nil
	}
	ips, err := resolveHostIPs(ctx, normalized)
	if err != nil {
		return errors.E(errors.KindURLRejected, "host did not resolve", err)
	}
	for _, ip := range ips {
		if reason := blockedIPReason(ip); reason != "" {
			return errors.Ef(errors.KindURLRejected, nil, "host %s resolves to a %s address", normalized, reason)
		}
	}
	return nil
}

// NormalizeHost lowercases and IDNA-punycodes a hostname. IP literals pass
// through unchanged.
func NormalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}

func (p Policy) hostAllowed(host string) bool {
	for _, allowed := range p.AllowedHosts {
		n, err := NormalizeHost(strings.TrimSpace(allowed))
		if err != nil {
			continue
		}
		if n == host {
			return true
		}
	}
	return false
}

func resolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	addrs, err := lookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func blockedIPReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsMulticast():
		return "multicast"
	case ip.IsUnspecified():
		return "unspecified"
	}
	return ""
}
