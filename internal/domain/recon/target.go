package recon

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// TargetKind enum
type TargetKind string

const (
	TargetDomain TargetKind = "domain"
	TargetIP     TargetKind = "ip"
	TargetCIDR   TargetKind = "cidr"
)

// Target is the validated scan input. Immutable once a scan starts.
type Target struct {
	Raw   string     `json:"raw"`
	Value string     `json:"value"` // normalized form
	Kind  TargetKind `json:"kind"`
}

// allow-pattern for hostnames: RFC 1123 labels, at least two of them
var hostnameRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// lax charset for names found in tool output, underscores included
// (_dmarc.example.com and friends)
var laxHostRE = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]*[a-z0-9_])?(\.[a-z0-9_]([a-z0-9_-]*[a-z0-9_])?)*$`)

// ParseTarget validates and normalizes a raw target string.
// Accepted forms: domain name, IPv4/IPv6 address, CIDR range.
func ParseTarget(raw string) (Target, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return Target{}, &ValidationError{Field: "target", Reason: "must not be empty"}
	}
	if len(s) > 253 {
		return Target{}, &ValidationError{Field: "target", Reason: "too long"}
	}

	if strings.Contains(s, "/") {
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return Target{}, &ValidationError{Field: "target", Reason: "invalid CIDR range"}
		}
		return Target{Raw: raw, Value: ipnet.String(), Kind: TargetCIDR}, nil
	}

	if ip := net.ParseIP(s); ip != nil {
		return Target{Raw: raw, Value: ip.String(), Kind: TargetIP}, nil
	}

	host, err := NormalizeHostname(s)
	if err != nil || !hostnameRE.MatchString(host) || !tldHasLetter(host) {
		return Target{}, &ValidationError{Field: "target", Reason: "not a valid domain, IP address, or CIDR range"}
	}
	return Target{Raw: raw, Value: host, Kind: TargetDomain}, nil
}

// tldHasLetter rejects all-numeric top level labels ("999.1.1.1" is
// neither an IP nor a resolvable name).
func tldHasLetter(host string) bool {
	last := host[strings.LastIndex(host, ".")+1:]
	for _, r := range last {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}

// NormalizeHostname lowercases, strips the trailing dot and maps
// internationalized names to their ASCII (punycode) form. Tool output may
// contain names like _dmarc.example.com, so this stays permissive; target
// validation additionally gates on the strict allow-pattern above.
func NormalizeHostname(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", ErrEmptyValue
	}
	if strings.ContainsAny(s, " \t/\\@") {
		return "", fmt.Errorf("invalid hostname: %q", raw)
	}
	ascii, err := idna.ToASCII(s)
	if err != nil {
		return "", err
	}
	if !laxHostRE.MatchString(ascii) {
		return "", fmt.Errorf("invalid hostname: %q", raw)
	}
	return ascii, nil
}
