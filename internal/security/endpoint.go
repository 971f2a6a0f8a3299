package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// blockedHosts are cloud metadata endpoints. A scoring URL pointing at one
// would leak instance credentials into assessment payloads.
var blockedHosts = []string{"metadata.google.internal", "metadata.google", "metadata"}

// ValidatePredictURL checks the configured remote scoring base URL.
//
// Loopback and private addresses are accepted since the scoring service
// usually runs as a sidecar or on the cluster network. Link-local,
// multicast and unspecified literals are rejected. No DNS lookup is made:
// the scoring service may not be resolvable yet when the dashboard starts.
func ValidatePredictURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("URL scheme must be http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	if u.User != nil {
		return fmt.Errorf("URL must not carry credentials")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}
	return nil
}

func checkIP(ip net.IP) error {
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local addresses are not allowed")
	}
	if ip.IsMulticast() {
		return fmt.Errorf("multicast addresses are not allowed")
	}
	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
