package resource

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/match"
)

// Cloud metadata endpoints, by name and by address.
var metadataHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

var metadataAddrs = []string{
	"169.254.169.254", // AWS/GCP/Azure IMDS
	"100.100.100.200", // Alibaba Cloud
	"fd00:ec2::254",   // AWS IMDSv2 over IPv6
}

// ValidateNetwork decides an outbound call to rawURL. The hostname is
// resolved first and loopback, private-range, link-local, and metadata
// addresses are denied before the domain allow-list is consulted.
func (v *Validator) ValidateNetwork(ctx context.Context, rawURL string) *api.Decision {
	start := time.Now()

	if emptyOrBinary(rawURL) {
		d := malformed("network")
		v.record(ctx, api.ClassNetwork, rawURL, d, "", start)
		return d
	}

	host, d := v.checkURL(rawURL)
	if d != nil {
		threat := ""
		if strings.HasPrefix(d.LayerViolations[0], "ssrf") {
			threat = api.ThreatSSRF
		}
		v.record(ctx, api.ClassNetwork, rawURL, d, threat, start)
		return d
	}

	if !match.DomainAny(v.policy.Network.AllowedDomains, host) {
		d := api.Deny("network allow-list", "domain matches no allow pattern", 1.0)
		v.record(ctx, api.ClassNetwork, rawURL, d, "", start)
		return d
	}

	d = api.Approve("network allow-list", 1.0)
	v.record(ctx, api.ClassNetwork, rawURL, d, "", start)
	return d
}

// checkURL parses the URL and runs the SSRF guard. It returns the hostname
// and, on failure, the denial.
func (v *Validator) checkURL(rawURL string) (string, *api.Decision) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", malformed("network")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", api.Deny("network scheme", "only http and https are permitted", 1.0)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", malformed("network")
	}

	if metadataHosts[host] {
		return "", api.Deny("ssrf metadata endpoint", "cloud metadata hostname is blocked", 1.0)
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := v.lookup(host)
		if err != nil || len(resolved) == 0 {
			// Unresolvable targets fail closed.
			return "", api.Deny("network resolution", "hostname did not resolve", 1.0)
		}
		ips = resolved
	}

	for _, ip := range ips {
		if layer, reason := blockedAddress(ip); layer != "" {
			return "", api.Deny(layer, reason, 1.0)
		}
	}
	return host, nil
}

// BlockedAddress reports whether an address must be denied by the SSRF
// guard. Exported for the tool validator's URL parameter scan.
func BlockedAddress(ip net.IP) bool {
	layer, _ := blockedAddress(ip)
	return layer != ""
}

// MetadataHostname reports whether host names a cloud metadata service.
func MetadataHostname(host string) bool {
	return metadataHosts[strings.ToLower(host)]
}

func blockedAddress(ip net.IP) (layer, reason string) {
	for _, meta := range metadataAddrs {
		if ip.Equal(net.ParseIP(meta)) {
			return "ssrf metadata endpoint", "cloud metadata address is blocked"
		}
	}
	switch {
	case ip.IsLoopback():
		return "ssrf loopback", "loopback address is blocked"
	case ip.IsPrivate():
		return "ssrf private range", "private-range address is blocked"
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return "ssrf link-local", "link-local address is blocked"
	case ip.IsUnspecified():
		return "ssrf unspecified", "unspecified address is blocked"
	}
	return "", ""
}
